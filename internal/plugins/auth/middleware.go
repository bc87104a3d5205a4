package auth

import (
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/halverson/stackpad/internal/apperror"
	"github.com/halverson/stackpad/internal/plugins/audit"
	"github.com/halverson/stackpad/internal/token"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "__access__token"

// Context keys set by the guard middleware after successful authentication.
const (
	ContextUserKey = "auth.user"
)

// Guard authenticates requests from the session cookie and optionally
// enforces a role. Every protected route goes through exactly one guard.
type Guard struct {
	codec   *token.Codec
	users   UserRepository
	auditor audit.Service
}

// NewGuard creates the session guard middleware factory.
func NewGuard(codec *token.Codec, users UserRepository, auditor audit.Service) *Guard {
	return &Guard{codec: codec, users: users, auditor: auditor}
}

// Authenticate requires a valid session. The resolved user is stored on the
// request context for handlers to read via CurrentUser.
func (g *Guard) Authenticate() echo.MiddlewareFunc {
	return g.require("")
}

// RequireRole requires a valid session whose account holds the given role.
func (g *Guard) RequireRole(role Role) echo.MiddlewareFunc {
	return g.require(role)
}

func (g *Guard) require(required Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				return apperror.NewUnauthorized("You must be logged in to access this resource.")
			}

			userID, err := g.codec.Verify(cookie.Value)
			if err != nil {
				// Malformed, expired, and forged tokens all end the same
				// way for the client; the distinction matters for logs.
				slog.Info("rejected session token",
					slog.String("path", c.Request().URL.Path),
					slog.Any("reason", err),
				)
				return apperror.NewForbidden("Invalid session token.")
			}

			ctx := c.Request().Context()
			user, err := g.users.FindByID(ctx, userID)
			if err != nil {
				if isNotFound(err) {
					// Valid token for a deleted account.
					return apperror.NewBadRequest("This account no longer exists.")
				}
				return apperror.NewInternal(err)
			}

			if required != "" {
				if !user.Role.Valid() || user.Role != required {
					g.auditor.Append(ctx,
						fmt.Sprintf("%s attempted to access %s without the %s role",
							user.Username, c.Request().URL.Path, required),
						&user.ID, audit.LevelError)
					return apperror.NewForbidden("You do not have permission to access this resource.")
				}
			}

			c.Set(ContextUserKey, user)
			return next(c)
		}
	}
}

// CurrentUser returns the authenticated user stored by the guard, or nil on
// routes that did not pass through it.
func CurrentUser(c echo.Context) *User {
	user, _ := c.Get(ContextUserKey).(*User)
	return user
}
