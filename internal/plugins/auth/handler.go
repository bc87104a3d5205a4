package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/halverson/stackpad/internal/apperror"
	"github.com/halverson/stackpad/internal/token"
)

// Handler exposes the authentication HTTP endpoints.
type Handler struct {
	svc       Service
	codec     *token.Codec
	cookieTTL time.Duration
}

// NewHandler creates the auth handler. cookieTTL should match the token TTL
// so the cookie and the token it carries expire together.
func NewHandler(svc Service, codec *token.Codec, cookieTTL time.Duration) *Handler {
	return &Handler{svc: svc, codec: codec, cookieTTL: cookieTTL}
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body.")
	}

	user, err := h.svc.Register(c.Request().Context(), RegisterInput{
		Name:     req.Name,
		Forename: req.Forename,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Confirm:  req.Confirm,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		return err
	}

	if err := h.startSession(c, user.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"message": "Registration successful.",
		"user":    user,
	})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body.")
	}

	user, err := h.svc.Login(c.Request().Context(), LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	if err := h.startSession(c, user.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"message": "Login successful.",
		"user":    user,
	})
}

// Google handles POST /api/auth/google, the federated sign-in callback.
func (h *Handler) Google(c echo.Context) error {
	var req GoogleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("Invalid request body.")
	}

	user, err := h.svc.SignInWithGoogle(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}

	if err := h.startSession(c, user.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"message": "Login successful.",
		"user":    user,
	})
}

// Logout handles GET /api/auth/logout. Sessions are stateless, so logout is
// just clearing the cookie; the endpoint is idempotent and never fails.
func (h *Handler) Logout(c echo.Context) error {
	ClearSessionCookie(c)
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Logout successful.",
	})
}

// Me handles GET /api/auth/me. Runs behind the guard, which already resolved
// the account; a fresh load keeps the response current with the database.
func (h *Handler) Me(c echo.Context) error {
	current := CurrentUser(c)
	user, err := h.svc.GetConnectedUser(c.Request().Context(), current.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"user": user})
}

// startSession mints a token for the user and attaches the session cookie.
func (h *Handler) startSession(c echo.Context, userID string) error {
	signed, err := h.codec.Mint(userID)
	if err != nil {
		return apperror.NewInternal(err)
	}
	SetSessionCookie(c, signed, h.cookieTTL)
	return nil
}

// SetSessionCookie attaches the session cookie to the response. Secure is
// derived from the request scheme so local HTTP development keeps working.
func SetSessionCookie(c echo.Context, value string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie immediately.
func ClearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})
}
