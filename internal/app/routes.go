package app

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/halverson/stackpad/internal/plugins/account"
	"github.com/halverson/stackpad/internal/plugins/admin"
	"github.com/halverson/stackpad/internal/plugins/audit"
	"github.com/halverson/stackpad/internal/plugins/auth"
	"github.com/halverson/stackpad/internal/plugins/avatars"
	"github.com/halverson/stackpad/internal/plugins/settings"
	"github.com/halverson/stackpad/internal/presence"
	"github.com/halverson/stackpad/internal/token"
)

// RegisterRoutes constructs every plugin and mounts its routes. This is the
// single place where the dependency graph between plugins is visible.
func (a *App) RegisterRoutes() {
	codec := token.NewCodec(a.Config.Auth.SecretKey, a.Config.Auth.TokenTTL)

	auditSvc := audit.NewService(audit.NewRepository(a.DB))
	settingsSvc := settings.NewService(settings.NewRepository(a.DB))
	avatarSvc := avatars.NewService(a.Config.Upload.MediaPath, a.Config.Upload.MaxSize, settingsSvc)

	userRepo := auth.NewRepository(a.DB)
	guard := auth.NewGuard(codec, userRepo, auditSvc)

	authSvc := auth.NewService(userRepo, auditSvc, avatarSvc, settingsSvc)
	auth.RegisterRoutes(a.Echo, auth.NewHandler(authSvc, codec, a.Config.Auth.TokenTTL), guard, a.Redis)

	accountSvc := account.NewService(userRepo, avatarSvc, auditSvc)
	account.RegisterRoutes(a.Echo, account.NewHandler(accountSvc), guard)

	adminSvc := admin.NewService(userRepo, auditSvc, avatarSvc, a.Presence)
	admin.RegisterRoutes(a.Echo, admin.NewHandler(adminSvc, auditSvc, settingsSvc), guard)

	presenceHandler := presence.NewHandler(a.Presence, a.Config.CORSOrigin)
	a.Echo.GET("/ws", presenceHandler.Serve, guard.Authenticate())

	// Stored avatars are public; paths are unguessable UUIDs.
	a.Echo.Static("/media", a.Config.Upload.MediaPath)

	a.Echo.GET("/healthz", a.healthz)
}

// healthz reports liveness plus database reachability.
func (a *App) healthz(c echo.Context) error {
	if err := a.DB.PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  "database unreachable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
