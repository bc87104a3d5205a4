package settings

import (
	"context"
	"strconv"

	"github.com/halverson/stackpad/internal/apperror"
)

// Setting keys. New keys need a default below and a field in Snapshot.
const (
	keyRegistrationOpen   = "registration_open"
	keyMaintenanceMessage = "maintenance_message"
	keyMaxAvatarSize      = "max_avatar_size"
	keyAuditRetentionDays = "audit_retention_days"
)

// Defaults apply when a key has never been written.
const (
	defaultRegistrationOpen   = true
	defaultMaxAvatarSize      = int64(5 * 1024 * 1024)
	defaultAuditRetentionDays = 90
)

// Snapshot is the full runtime configuration as exposed to admins.
type Snapshot struct {
	RegistrationOpen   bool   `json:"registration_open"`
	MaintenanceMessage string `json:"maintenance_message"`
	MaxAvatarSize      int64  `json:"max_avatar_size"`
	AuditRetentionDays int    `json:"audit_retention_days"`
}

// Update carries a partial settings change; nil fields are left untouched.
type Update struct {
	RegistrationOpen   *bool   `json:"registration_open,omitempty"`
	MaintenanceMessage *string `json:"maintenance_message,omitempty"`
	MaxAvatarSize      *int64  `json:"max_avatar_size,omitempty"`
	AuditRetentionDays *int    `json:"audit_retention_days,omitempty"`
}

// Service exposes typed access to the runtime settings. Values are read from
// the database on every call so changes take effect immediately on all
// replicas.
type Service interface {
	RegistrationOpen(ctx context.Context) (bool, error)
	MaintenanceMessage(ctx context.Context) (string, error)
	MaxAvatarSize(ctx context.Context) (int64, error)
	AuditRetentionDays(ctx context.Context) (int, error)

	Snapshot(ctx context.Context) (*Snapshot, error)
	Apply(ctx context.Context, update Update) (*Snapshot, error)
}

type service struct {
	repo Repository
}

// NewService creates the settings service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) RegistrationOpen(ctx context.Context) (bool, error) {
	raw, ok, err := s.repo.Get(ctx, keyRegistrationOpen)
	if err != nil {
		return false, err
	}
	if !ok {
		return defaultRegistrationOpen, nil
	}
	return raw == "true", nil
}

func (s *service) MaintenanceMessage(ctx context.Context) (string, error) {
	raw, _, err := s.repo.Get(ctx, keyMaintenanceMessage)
	return raw, err
}

func (s *service) MaxAvatarSize(ctx context.Context) (int64, error) {
	raw, ok, err := s.repo.Get(ctx, keyMaxAvatarSize)
	if err != nil {
		return 0, err
	}
	if !ok {
		return defaultMaxAvatarSize, nil
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || size <= 0 {
		return defaultMaxAvatarSize, nil
	}
	return size, nil
}

func (s *service) AuditRetentionDays(ctx context.Context) (int, error) {
	raw, ok, err := s.repo.Get(ctx, keyAuditRetentionDays)
	if err != nil {
		return 0, err
	}
	if !ok {
		return defaultAuditRetentionDays, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return defaultAuditRetentionDays, nil
	}
	return days, nil
}

func (s *service) Snapshot(ctx context.Context) (*Snapshot, error) {
	open, err := s.RegistrationOpen(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	message, err := s.MaintenanceMessage(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	maxSize, err := s.MaxAvatarSize(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	retention, err := s.AuditRetentionDays(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	return &Snapshot{
		RegistrationOpen:   open,
		MaintenanceMessage: message,
		MaxAvatarSize:      maxSize,
		AuditRetentionDays: retention,
	}, nil
}

func (s *service) Apply(ctx context.Context, update Update) (*Snapshot, error) {
	if update.RegistrationOpen != nil {
		if err := s.repo.Set(ctx, keyRegistrationOpen, strconv.FormatBool(*update.RegistrationOpen)); err != nil {
			return nil, apperror.NewInternal(err)
		}
	}
	if update.MaintenanceMessage != nil {
		if err := s.repo.Set(ctx, keyMaintenanceMessage, *update.MaintenanceMessage); err != nil {
			return nil, apperror.NewInternal(err)
		}
	}
	if update.MaxAvatarSize != nil {
		if *update.MaxAvatarSize <= 0 {
			return nil, apperror.NewBadRequest("Maximum avatar size must be positive.")
		}
		if err := s.repo.Set(ctx, keyMaxAvatarSize, strconv.FormatInt(*update.MaxAvatarSize, 10)); err != nil {
			return nil, apperror.NewInternal(err)
		}
	}
	if update.AuditRetentionDays != nil {
		if *update.AuditRetentionDays <= 0 {
			return nil, apperror.NewBadRequest("Audit retention must be at least one day.")
		}
		if err := s.repo.Set(ctx, keyAuditRetentionDays, strconv.Itoa(*update.AuditRetentionDays)); err != nil {
			return nil, apperror.NewInternal(err)
		}
	}

	return s.Snapshot(ctx)
}
