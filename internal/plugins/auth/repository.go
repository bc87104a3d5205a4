package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/halverson/stackpad/internal/apperror"
)

// Duplicate-key sentinels. Create maps MySQL error 1062 onto these so the
// service can report which field collided even when two registrations race
// past the pre-checks.
var (
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already registered")
)

// UserRepository defines persistence operations for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// FindByLogin resolves a login identifier that may be a username or an
	// email address, case-insensitively.
	FindByLogin(ctx context.Context, identifier string) (*User, error)
	Count(ctx context.Context) (int, error)
	UpdateProfile(ctx context.Context, id, name, forename, username string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateAvatar(ctx context.Context, id string, avatarPath *string) error
	UpdateRole(ctx context.Context, id string, role Role) error
	CountByRole(ctx context.Context, role Role) (int, error)
	List(ctx context.Context, offset, limit int, sortBy, sortDir string) ([]User, error)
	Delete(ctx context.Context, id string) error
}

type mariadbRepository struct {
	db *sql.DB
}

// NewRepository creates a MariaDB-backed user repository.
func NewRepository(db *sql.DB) UserRepository {
	return &mariadbRepository{db: db}
}

const userColumns = `id, email, username, name, forename, password_hash, role, avatar_path, origin, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.Name, &u.Forename,
		&u.PasswordHash, &u.Role, &u.AvatarPath, &u.Origin,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("User not found.")
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

func (r *mariadbRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query := `
		INSERT INTO users (id, email, username, name, forename, password_hash, role, avatar_path, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.Name, user.Forename,
		user.PasswordHash, string(user.Role), user.AvatarPath, string(user.Origin),
	)
	if err != nil {
		if dup := classifyDuplicate(err); dup != nil {
			return dup
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// classifyDuplicate maps MySQL duplicate-entry errors (1062) onto the field
// sentinels using the violated index name. Returns nil for any other error.
func classifyDuplicate(err error) error {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) || mysqlErr.Number != 1062 {
		return nil
	}
	switch {
	case strings.Contains(mysqlErr.Message, "uniq_users_email"):
		return ErrEmailTaken
	case strings.Contains(mysqlErr.Message, "uniq_users_username"):
		return ErrUsernameTaken
	}
	// Unknown unique index; surface as-is so it shows up in logs.
	return fmt.Errorf("duplicate entry: %w", err)
}

func (r *mariadbRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *mariadbRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER(?)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *mariadbRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER(?)`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *mariadbRepository) FindByLogin(ctx context.Context, identifier string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)`
	return scanUser(r.db.QueryRowContext(ctx, query, identifier, identifier))
}

func (r *mariadbRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

func (r *mariadbRepository) UpdateProfile(ctx context.Context, id, name, forename, username string) error {
	query := `UPDATE users SET name = ?, forename = ?, username = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, name, forename, username, id)
	if err != nil {
		if dup := classifyDuplicate(err); dup != nil {
			return dup
		}
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}

func (r *mariadbRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, passwordHash, id); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return nil
}

func (r *mariadbRepository) UpdateAvatar(ctx context.Context, id string, avatarPath *string) error {
	query := `UPDATE users SET avatar_path = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, avatarPath, id); err != nil {
		return fmt.Errorf("updating avatar: %w", err)
	}
	return nil
}

func (r *mariadbRepository) UpdateRole(ctx context.Context, id string, role Role) error {
	query := `UPDATE users SET role = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, string(role), id)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking role update: %w", err)
	}
	if affected == 0 {
		return apperror.NewNotFound("User not found.")
	}
	return nil
}

func (r *mariadbRepository) CountByRole(ctx context.Context, role Role) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE role = ?`
	if err := r.db.QueryRowContext(ctx, query, string(role)).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users by role: %w", err)
	}
	return count, nil
}

// listSortColumns whitelists the sortable columns for List. Anything else
// falls back to created_at; sort input never reaches the query as text.
var listSortColumns = map[string]string{
	"username":   "username",
	"email":      "email",
	"name":       "name",
	"role":       "role",
	"created_at": "created_at",
}

func (r *mariadbRepository) List(ctx context.Context, offset, limit int, sortBy, sortDir string) ([]User, error) {
	column, ok := listSortColumns[sortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		direction = "DESC"
	}

	// The list projection deliberately excludes password_hash.
	query := `SELECT id, email, username, name, forename, role, avatar_path, origin, created_at, updated_at
		FROM users
		ORDER BY ` + column + ` ` + direction + `, id ASC
		LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		err := rows.Scan(
			&u.ID, &u.Email, &u.Username, &u.Name, &u.Forename,
			&u.Role, &u.AvatarPath, &u.Origin,
			&u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

func (r *mariadbRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking user delete: %w", err)
	}
	if affected == 0 {
		return apperror.NewNotFound("User not found.")
	}
	return nil
}
