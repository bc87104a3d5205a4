package account

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/halverson/stackpad/internal/apperror"
	"github.com/halverson/stackpad/internal/plugins/auth"
)

// Handler exposes the account self-service HTTP endpoints. All routes run
// behind the session guard.
type Handler struct {
	svc Service
}

// NewHandler creates the account handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type profileRequest struct {
	Name     string `json:"name"`
	Forename string `json:"forename"`
	Username string `json:"username"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	Confirm         string `json:"confirmPassword"`
}

type deleteRequest struct {
	Password string `json:"password"`
}

// UpdateProfile handles PUT /api/account/profile.
func (h *Handler) UpdateProfile(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body.")
	}

	user, err := h.svc.UpdateProfile(c.Request().Context(), auth.CurrentUser(c), req.Name, req.Forename, req.Username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Profile updated.",
		"user":    user,
	})
}

// ChangePassword handles PUT /api/account/password.
func (h *Handler) ChangePassword(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body.")
	}

	err := h.svc.ChangePassword(c.Request().Context(), auth.CurrentUser(c),
		req.CurrentPassword, req.NewPassword, req.Confirm)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Password changed.",
	})
}

// UploadAvatar handles POST /api/account/avatar (multipart form, field
// "avatar").
func (h *Handler) UploadAvatar(c echo.Context) error {
	fileHeader, err := c.FormFile("avatar")
	if err != nil {
		return apperror.NewBadRequest("An image file is required in the 'avatar' field.")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return apperror.NewInternal(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return apperror.NewInternal(err)
	}

	relPath, err := h.svc.UpdateAvatar(c.Request().Context(), auth.CurrentUser(c),
		data, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Avatar updated.",
		"avatar":  relPath,
	})
}

// Delete handles DELETE /api/account. On success the session cookie is
// cleared; the token it carried points at a row that no longer exists.
func (h *Handler) Delete(c echo.Context) error {
	var req deleteRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body.")
	}

	if err := h.svc.Delete(c.Request().Context(), auth.CurrentUser(c), req.Password); err != nil {
		return err
	}

	auth.ClearSessionCookie(c)
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Account deleted.",
	})
}
