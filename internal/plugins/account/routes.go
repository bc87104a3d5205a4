package account

import (
	"github.com/labstack/echo/v4"

	"github.com/halverson/stackpad/internal/plugins/auth"
)

// RegisterRoutes mounts the account endpoints under /api/account. All of
// them require a valid session.
func RegisterRoutes(e *echo.Echo, h *Handler, guard *auth.Guard) {
	g := e.Group("/api/account", guard.Authenticate())

	g.PUT("/profile", h.UpdateProfile)
	g.PUT("/password", h.ChangePassword)
	g.POST("/avatar", h.UploadAvatar)
	g.DELETE("", h.Delete)
}
