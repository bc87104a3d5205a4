package admin

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/halverson/stackpad/internal/apperror"
	"github.com/halverson/stackpad/internal/plugins/audit"
	"github.com/halverson/stackpad/internal/plugins/auth"
	"github.com/halverson/stackpad/internal/plugins/settings"
)

// Handler exposes the admin dashboard endpoints. Routing applies the admin
// role guard to every route in this group.
type Handler struct {
	svc      Service
	auditor  audit.Service
	settings settings.Service
}

// NewHandler creates the admin handler.
func NewHandler(svc Service, auditor audit.Service, settingsSvc settings.Service) *Handler {
	return &Handler{svc: svc, auditor: auditor, settings: settingsSvc}
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// ListUsers handles GET /api/admin/users.
func (h *Handler) ListUsers(c echo.Context) error {
	page := queryInt(c, "page", 1)
	size := queryInt(c, "size", defaultPageSize)
	sortBy := c.QueryParam("sort")
	sortDir := c.QueryParam("dir")

	users, total, err := h.svc.ListUsers(c.Request().Context(), page, size, sortBy, sortDir)
	if err != nil {
		return err
	}
	if users == nil {
		users = []auth.User{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"users": users,
		"total": total,
		"page":  page,
	})
}

// GetUser handles GET /api/admin/users/:id.
func (h *Handler) GetUser(c echo.Context) error {
	user, err := h.svc.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"user": user})
}

type roleRequest struct {
	Role string `json:"role"`
}

// UpdateUser handles PUT /api/admin/users/:id (role change).
func (h *Handler) UpdateUser(c echo.Context) error {
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body.")
	}

	user, err := h.svc.UpdateRole(c.Request().Context(), auth.CurrentUser(c),
		c.Param("id"), auth.Role(req.Role))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Role updated.",
		"user":    user,
	})
}

// DeleteUser handles DELETE /api/admin/users/:id.
func (h *Handler) DeleteUser(c echo.Context) error {
	if err := h.svc.DeleteUser(c.Request().Context(), auth.CurrentUser(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "User deleted.",
	})
}

// ListLogs handles GET /api/admin/logs.
func (h *Handler) ListLogs(c echo.Context) error {
	page := queryInt(c, "page", 1)
	size := queryInt(c, "size", 50)

	entries, total, err := h.auditor.List(c.Request().Context(), page, size)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"logs":  entries,
		"total": total,
		"page":  page,
	})
}

// DeleteLog handles DELETE /api/admin/logs/:id.
func (h *Handler) DeleteLog(c echo.Context) error {
	if err := h.auditor.DeleteOne(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Log entry deleted.",
	})
}

// ClearLogs handles DELETE /api/admin/logs.
func (h *Handler) ClearLogs(c echo.Context) error {
	if err := h.auditor.DeleteAll(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Audit log cleared.",
	})
}

// GetSettings handles GET /api/admin/settings.
func (h *Handler) GetSettings(c echo.Context) error {
	snap, err := h.settings.Snapshot(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"settings": snap})
}

// UpdateSettings handles PUT /api/admin/settings.
func (h *Handler) UpdateSettings(c echo.Context) error {
	var update settings.Update
	if err := c.Bind(&update); err != nil {
		return apperror.NewBadRequest("Invalid request body.")
	}

	snap, err := h.settings.Apply(c.Request().Context(), update)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message":  "Settings updated.",
		"settings": snap,
	})
}

// Overview handles GET /api/admin/overview.
func (h *Handler) Overview(c echo.Context) error {
	overview, err := h.svc.Overview(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, overview)
}
