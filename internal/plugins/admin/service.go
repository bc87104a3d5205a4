// Package admin implements the dashboard backend: user administration, audit
// log browsing, runtime settings, and the overview counters. Every route in
// this plugin is gated on the admin role.
package admin

import (
	"context"
	"fmt"

	"github.com/halverson/stackpad/internal/apperror"
	"github.com/halverson/stackpad/internal/plugins/audit"
	"github.com/halverson/stackpad/internal/plugins/auth"
)

// OnlineCounter reports how many distinct users are currently connected.
// Implemented by the presence tracker.
type OnlineCounter interface {
	Count() int
}

// AvatarRemover is the slice of the avatar service needed for user deletion.
type AvatarRemover interface {
	Remove(relPath string)
}

// Overview is the dashboard summary payload.
type Overview struct {
	Users        int `json:"users"`
	Admins       int `json:"admins"`
	AuditEntries int `json:"audit_entries"`
	Online       int `json:"online"`
}

// Service defines the admin user-management operations.
type Service interface {
	ListUsers(ctx context.Context, page, size int, sortBy, sortDir string) ([]auth.User, int, error)
	GetUser(ctx context.Context, id string) (*auth.User, error)

	// UpdateRole changes a user's role. Demoting the last remaining admin
	// is refused; the instance must always have one.
	UpdateRole(ctx context.Context, actor *auth.User, id string, role auth.Role) (*auth.User, error)

	// DeleteUser removes an account and its avatar file.
	DeleteUser(ctx context.Context, actor *auth.User, id string) error

	Overview(ctx context.Context) (*Overview, error)
}

type service struct {
	users   auth.UserRepository
	auditor audit.Service
	avatars AvatarRemover
	online  OnlineCounter
}

// NewService creates the admin service.
func NewService(users auth.UserRepository, auditor audit.Service, avatars AvatarRemover, online OnlineCounter) Service {
	return &service{users: users, auditor: auditor, avatars: avatars, online: online}
}

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

func (s *service) ListUsers(ctx context.Context, page, size int, sortBy, sortDir string) ([]auth.User, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, 0, apperror.NewInternal(err)
	}

	users, err := s.users.List(ctx, (page-1)*size, size, sortBy, sortDir)
	if err != nil {
		return nil, 0, apperror.NewInternal(err)
	}
	return users, total, nil
}

func (s *service) GetUser(ctx context.Context, id string) (*auth.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *service) UpdateRole(ctx context.Context, actor *auth.User, id string, role auth.Role) (*auth.User, error) {
	if !role.Valid() {
		return nil, apperror.NewBadRequest("Unknown role.")
	}

	target, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if target.Role == role {
		return target, nil
	}

	if target.Role == auth.RoleAdmin && role != auth.RoleAdmin {
		admins, err := s.users.CountByRole(ctx, auth.RoleAdmin)
		if err != nil {
			return nil, apperror.NewInternal(err)
		}
		if admins <= 1 {
			return nil, apperror.NewConflict("Cannot demote the last admin.")
		}
	}

	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		return nil, err
	}

	s.auditor.Append(ctx,
		fmt.Sprintf("%s changed role of %s to %s", actor.Username, target.Username, role),
		&actor.ID, audit.LevelInfo)

	target.Role = role
	return target, nil
}

func (s *service) DeleteUser(ctx context.Context, actor *auth.User, id string) error {
	target, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if target.Role == auth.RoleAdmin {
		admins, err := s.users.CountByRole(ctx, auth.RoleAdmin)
		if err != nil {
			return apperror.NewInternal(err)
		}
		if admins <= 1 {
			return apperror.NewConflict("Cannot delete the last admin.")
		}
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}

	if target.AvatarPath != nil {
		s.avatars.Remove(*target.AvatarPath)
	}

	s.auditor.Append(ctx,
		fmt.Sprintf("%s deleted account %s", actor.Username, target.Username),
		&actor.ID, audit.LevelInfo)
	return nil
}

func (s *service) Overview(ctx context.Context) (*Overview, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	admins, err := s.users.CountByRole(ctx, auth.RoleAdmin)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	_, entryCount, err := s.auditor.List(ctx, 1, 1)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	return &Overview{
		Users:        users,
		Admins:       admins,
		AuditEntries: entryCount,
		Online:       s.online.Count(),
	}, nil
}
