package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/halverson/stackpad/internal/apperror"
)

// Repository defines persistence operations for audit entries.
type Repository interface {
	Insert(ctx context.Context, message string, userID *string, level Level) error
	List(ctx context.Context, offset, limit int) ([]Entry, error)
	Count(ctx context.Context) (int, error)
	DeleteOne(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

type mariadbRepository struct {
	db *sql.DB
}

// NewRepository creates a MariaDB-backed audit repository.
func NewRepository(db *sql.DB) Repository {
	return &mariadbRepository{db: db}
}

func (r *mariadbRepository) Insert(ctx context.Context, message string, userID *string, level Level) error {
	query := `
		INSERT INTO audit_log (id, message, user_id, level)
		VALUES (?, ?, ?, ?)`

	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), message, userID, string(level)); err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns entries newest-first, joined with the actor's username when
// the account still exists.
func (r *mariadbRepository) List(ctx context.Context, offset, limit int) ([]Entry, error) {
	query := `
		SELECT a.id, a.message, a.user_id, COALESCE(u.username, ''), a.level, a.created_at
		FROM audit_log a
		LEFT JOIN users u ON u.id = a.user_id
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Message, &e.UserID, &e.Username, &e.Level, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

func (r *mariadbRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting audit entries: %w", err)
	}
	return count, nil
}

func (r *mariadbRepository) DeleteOne(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting audit entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return apperror.NewBadRequest("No log entry matches this id.")
	}
	return nil
}

func (r *mariadbRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM audit_log`); err != nil {
		return fmt.Errorf("clearing audit log: %w", err)
	}
	return nil
}
