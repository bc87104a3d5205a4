package admin

import (
	"github.com/labstack/echo/v4"

	"github.com/halverson/stackpad/internal/plugins/auth"
)

// RegisterRoutes mounts the dashboard endpoints under /api/admin. The whole
// group requires the admin role.
func RegisterRoutes(e *echo.Echo, h *Handler, guard *auth.Guard) {
	g := e.Group("/api/admin", guard.RequireRole(auth.RoleAdmin))

	g.GET("/users", h.ListUsers)
	g.GET("/users/:id", h.GetUser)
	g.PUT("/users/:id", h.UpdateUser)
	g.DELETE("/users/:id", h.DeleteUser)

	g.GET("/logs", h.ListLogs)
	g.DELETE("/logs/:id", h.DeleteLog)
	g.DELETE("/logs", h.ClearLogs)

	g.GET("/settings", h.GetSettings)
	g.PUT("/settings", h.UpdateSettings)

	g.GET("/overview", h.Overview)
}
