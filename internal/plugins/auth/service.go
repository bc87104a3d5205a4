package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/halverson/stackpad/internal/apperror"
	"github.com/halverson/stackpad/internal/plugins/audit"
)

// AvatarStore provisions avatar images for new accounts. Implemented by the
// avatars plugin; kept as a small interface here so the auth service can be
// tested without touching the filesystem.
type AvatarStore interface {
	// GeneratePlaceholder renders a deterministic identicon for the seed and
	// returns the stored file's relative path.
	GeneratePlaceholder(ctx context.Context, seed string) (string, error)

	// FetchRemote downloads a profile image from a federated identity
	// provider and returns the stored file's relative path.
	FetchRemote(ctx context.Context, url string) (string, error)
}

// RegistrationGate reports whether self-service registration is open.
// Implemented by the settings plugin.
type RegistrationGate interface {
	RegistrationOpen(ctx context.Context) (bool, error)
}

// Service defines the authentication business logic.
type Service interface {
	// Register creates a new account. The first account in an empty store is
	// granted the admin role.
	Register(ctx context.Context, input RegisterInput) (*User, error)

	// Login authenticates with username-or-email plus password.
	Login(ctx context.Context, input LoginInput) (*User, error)

	// SignInWithGoogle signs in an existing account by its verified federated
	// email. Unknown emails are rejected; federated sign-in never creates
	// accounts implicitly.
	SignInWithGoogle(ctx context.Context, email string) (*User, error)

	// GetConnectedUser loads the account behind a verified session.
	GetConnectedUser(ctx context.Context, id string) (*User, error)
}

type service struct {
	repo    UserRepository
	auditor audit.Service
	avatars AvatarStore
	gate    RegistrationGate
}

// NewService creates the auth service.
func NewService(repo UserRepository, auditor audit.Service, avatars AvatarStore, gate RegistrationGate) Service {
	return &service{repo: repo, auditor: auditor, avatars: avatars, gate: gate}
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Forename = strings.TrimSpace(input.Forename)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.Username = strings.TrimSpace(strings.ToLower(input.Username))

	if input.Name == "" || input.Forename == "" || input.Email == "" ||
		input.Username == "" || input.Password == "" || input.Confirm == "" {
		return nil, apperror.NewValidation("Please fill in all required fields.")
	}

	if input.Password != input.Confirm {
		return nil, apperror.NewBadRequest("Passwords do not match.")
	}

	if !PasswordStrongEnough(input.Password) {
		return nil, apperror.NewBadRequest(
			"Password must be at least 8 characters and contain an uppercase letter, a lowercase letter, a digit, and a special character.")
	}

	if s.gate != nil {
		open, err := s.gate.RegistrationOpen(ctx)
		if err != nil {
			return nil, apperror.NewInternal(err)
		}
		if !open {
			return nil, apperror.NewForbidden("Registration is currently closed.")
		}
	}

	// Pre-checks give friendly errors; the unique indexes remain the
	// authority when two registrations race.
	if _, err := s.repo.FindByEmail(ctx, input.Email); err == nil {
		return nil, apperror.NewConflict("An account with this email already exists.")
	} else if !isNotFound(err) {
		return nil, apperror.NewInternal(err)
	}
	if _, err := s.repo.FindByUsername(ctx, input.Username); err == nil {
		return nil, apperror.NewConflict("This username is already taken.")
	} else if !isNotFound(err) {
		return nil, apperror.NewInternal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	user := &User{
		Email:        input.Email,
		Username:     input.Username,
		Name:         input.Name,
		Forename:     input.Forename,
		PasswordHash: string(hash),
		Role:         RoleUser,
		Origin:       OriginLocal,
	}
	if count == 0 {
		// First account administers the instance.
		user.Role = RoleAdmin
	}
	if input.PhotoURL != "" {
		user.Origin = OriginFederated
	}

	user.AvatarPath = s.provisionAvatar(ctx, input.Username, input.PhotoURL)

	if err := s.repo.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			return nil, apperror.NewConflict("An account with this email already exists.")
		case errors.Is(err, ErrUsernameTaken):
			return nil, apperror.NewConflict("This username is already taken.")
		default:
			return nil, apperror.NewInternal(err)
		}
	}

	s.auditor.Append(ctx, fmt.Sprintf("new user registered: %s", user.Username), &user.ID, audit.LevelInfo)
	return user, nil
}

// provisionAvatar stores a starting avatar for a new account: the federated
// profile photo when one was provided, otherwise a generated identicon.
// Avatar trouble never blocks registration; the account just starts without one.
func (s *service) provisionAvatar(ctx context.Context, username, photoURL string) *string {
	if s.avatars == nil {
		return nil
	}

	if photoURL != "" {
		path, err := s.avatars.FetchRemote(ctx, photoURL)
		if err == nil {
			return &path
		}
		slog.Warn("fetching federated avatar failed, falling back to placeholder",
			slog.String("username", username),
			slog.Any("error", err),
		)
	}

	path, err := s.avatars.GeneratePlaceholder(ctx, username)
	if err != nil {
		slog.Warn("generating placeholder avatar failed",
			slog.String("username", username),
			slog.Any("error", err),
		)
		return nil
	}
	return &path
}

func (s *service) Login(ctx context.Context, input LoginInput) (*User, error) {
	identifier := strings.TrimSpace(input.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(input.Email)
	}

	if identifier == "" || input.Password == "" {
		return nil, apperror.NewValidation("Please provide a username or email and a password.")
	}

	user, err := s.repo.FindByLogin(ctx, identifier)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NewBadRequest("No account matches these credentials.")
		}
		return nil, apperror.NewInternal(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		s.auditor.Append(ctx, fmt.Sprintf("failed login attempt for %s", user.Username), &user.ID, audit.LevelError)
		return nil, apperror.NewBadRequest("Invalid credentials.")
	}

	s.auditor.Append(ctx, fmt.Sprintf("user logged in: %s", user.Username), &user.ID, audit.LevelInfo)
	return user, nil
}

func (s *service) SignInWithGoogle(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, apperror.NewValidation("An email address is required.")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NewNotFound("No account is linked to this email address. Please register first.")
		}
		return nil, apperror.NewInternal(err)
	}

	s.auditor.Append(ctx, fmt.Sprintf("user logged in via google: %s", user.Username), &user.ID, audit.LevelInfo)
	return user, nil
}

func (s *service) GetConnectedUser(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NewBadRequest("This account no longer exists.")
		}
		return nil, apperror.NewInternal(err)
	}
	return user, nil
}

// PasswordStrongEnough enforces the complexity policy: at least 8 characters
// with one uppercase letter, one lowercase letter, one digit, and one
// character that is none of those. Shared with the account plugin's password
// change flow so both entry points apply the same policy.
func PasswordStrongEnough(password string) bool {
	if len(password) < 8 {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	return upper && lower && digit && special
}

func isNotFound(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr) && appErr.Type == "not_found"
}
