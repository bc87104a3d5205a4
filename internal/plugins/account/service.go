// Package account implements authenticated self-service: profile edits,
// password changes, avatar uploads, and account deletion. Everything here
// operates on the caller's own account; cross-account administration lives
// in the admin plugin.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/halverson/stackpad/internal/apperror"
	"github.com/halverson/stackpad/internal/plugins/audit"
	"github.com/halverson/stackpad/internal/plugins/auth"
)

// AvatarStore is the slice of the avatar service the account plugin needs.
type AvatarStore interface {
	Store(ctx context.Context, data []byte, declaredMIME string) (string, error)
	Remove(relPath string)
}

// Service defines the account self-service operations. Every method takes
// the already-authenticated user resolved by the session guard.
type Service interface {
	// UpdateProfile changes name, forename, and username. Username
	// uniqueness is enforced the same way as at registration.
	UpdateProfile(ctx context.Context, user *auth.User, name, forename, username string) (*auth.User, error)

	// ChangePassword verifies the current password before applying a new
	// one that meets the complexity policy.
	ChangePassword(ctx context.Context, user *auth.User, current, newPassword, confirm string) error

	// UpdateAvatar stores a new uploaded avatar and removes the old file.
	UpdateAvatar(ctx context.Context, user *auth.User, data []byte, declaredMIME string) (string, error)

	// Delete removes the account after confirming the password. The caller
	// is responsible for clearing the session cookie afterwards.
	Delete(ctx context.Context, user *auth.User, password string) error
}

type service struct {
	users   auth.UserRepository
	avatars AvatarStore
	auditor audit.Service
}

// NewService creates the account service.
func NewService(users auth.UserRepository, avatars AvatarStore, auditor audit.Service) Service {
	return &service{users: users, avatars: avatars, auditor: auditor}
}

func (s *service) UpdateProfile(ctx context.Context, user *auth.User, name, forename, username string) (*auth.User, error) {
	name = strings.TrimSpace(name)
	forename = strings.TrimSpace(forename)
	username = strings.TrimSpace(strings.ToLower(username))

	if name == "" || forename == "" || username == "" {
		return nil, apperror.NewValidation("Please fill in all required fields.")
	}

	if !strings.EqualFold(username, user.Username) {
		if existing, err := s.users.FindByUsername(ctx, username); err == nil && existing.ID != user.ID {
			return nil, apperror.NewConflict("This username is already taken.")
		} else if err != nil && !isNotFound(err) {
			return nil, apperror.NewInternal(err)
		}
	}

	if err := s.users.UpdateProfile(ctx, user.ID, name, forename, username); err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) {
			return nil, apperror.NewConflict("This username is already taken.")
		}
		return nil, apperror.NewInternal(err)
	}

	updated, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return updated, nil
}

func (s *service) ChangePassword(ctx context.Context, user *auth.User, current, newPassword, confirm string) error {
	if current == "" || newPassword == "" || confirm == "" {
		return apperror.NewValidation("Please fill in all required fields.")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return apperror.NewBadRequest("Current password is incorrect.")
	}

	if newPassword != confirm {
		return apperror.NewBadRequest("Passwords do not match.")
	}

	if !auth.PasswordStrongEnough(newPassword) {
		return apperror.NewBadRequest(
			"Password must be at least 8 characters and contain an uppercase letter, a lowercase letter, a digit, and a special character.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return apperror.NewInternal(err)
	}

	s.auditor.Append(ctx, fmt.Sprintf("password changed for %s", user.Username), &user.ID, audit.LevelInfo)
	return nil
}

func (s *service) UpdateAvatar(ctx context.Context, user *auth.User, data []byte, declaredMIME string) (string, error) {
	relPath, err := s.avatars.Store(ctx, data, declaredMIME)
	if err != nil {
		return "", err
	}

	if err := s.users.UpdateAvatar(ctx, user.ID, &relPath); err != nil {
		s.avatars.Remove(relPath)
		return "", apperror.NewInternal(err)
	}

	// Old file goes only after the new one is recorded.
	if user.AvatarPath != nil {
		s.avatars.Remove(*user.AvatarPath)
	}
	return relPath, nil
}

func (s *service) Delete(ctx context.Context, user *auth.User, password string) error {
	if password == "" {
		return apperror.NewValidation("Your password is required to delete the account.")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return apperror.NewBadRequest("Incorrect password.")
	}

	// Recorded while the row still exists; the foreign key nulls user_id on
	// delete and the entry keeps the name in its message.
	s.auditor.Append(ctx, fmt.Sprintf("account deleted: %s", user.Username), &user.ID, audit.LevelInfo)

	if err := s.users.Delete(ctx, user.ID); err != nil {
		return apperror.NewInternal(err)
	}

	if user.AvatarPath != nil {
		s.avatars.Remove(*user.AvatarPath)
	}
	return nil
}

func isNotFound(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && appErr.Type == "not_found"
}
