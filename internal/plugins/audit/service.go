package audit

import (
	"context"
	"log/slog"

	"github.com/halverson/stackpad/internal/apperror"
)

// Service exposes audit log operations. Append is fire-and-forget by
// contract: callers record events inline with business logic and must never
// fail because the audit trail does.
type Service interface {
	// Append records an entry. Missing message, missing userID, and unknown
	// levels are dropped with a warning; persistence failures are logged and
	// swallowed.
	Append(ctx context.Context, message string, userID *string, level Level)

	// List returns one page of entries, newest first, plus the total count.
	List(ctx context.Context, page, size int) ([]Entry, int, error)

	DeleteOne(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

type service struct {
	repo Repository
}

// NewService creates the audit service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (s *service) Append(ctx context.Context, message string, userID *string, level Level) {
	if message == "" {
		slog.Warn("dropping audit entry with empty message")
		return
	}
	if userID == nil || *userID == "" {
		// Every entry needs an actor. Callers recording an action on an
		// account that is about to disappear must append before the row goes;
		// the foreign key nulls user_id afterwards while the entry survives.
		slog.Warn("dropping audit entry with missing userId",
			slog.String("message", message),
		)
		return
	}
	if !level.Valid() {
		slog.Warn("dropping audit entry with unknown level",
			slog.String("level", string(level)),
			slog.String("message", message),
		)
		return
	}

	if err := s.repo.Insert(ctx, message, userID, level); err != nil {
		slog.Error("failed to persist audit entry",
			slog.String("message", message),
			slog.Any("error", err),
		)
	}
}

func (s *service) List(ctx context.Context, page, size int) ([]Entry, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, apperror.NewInternal(err)
	}

	entries, err := s.repo.List(ctx, (page-1)*size, size)
	if err != nil {
		return nil, 0, apperror.NewInternal(err)
	}
	return entries, total, nil
}

func (s *service) DeleteOne(ctx context.Context, id string) error {
	if id == "" {
		return apperror.NewBadRequest("A log entry id is required.")
	}
	return s.repo.DeleteOne(ctx, id)
}

func (s *service) DeleteAll(ctx context.Context) error {
	return s.repo.DeleteAll(ctx)
}
