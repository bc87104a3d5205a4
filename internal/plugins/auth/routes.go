package auth

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/halverson/stackpad/internal/middleware"
)

// RegisterRoutes mounts the auth endpoints under /api/auth. The credential
// endpoints are rate limited per IP; rdb may be nil in tests, in which case
// no limiter is attached.
func RegisterRoutes(e *echo.Echo, h *Handler, guard *Guard, rdb *redis.Client) {
	g := e.Group("/api/auth")

	if rdb != nil {
		g.POST("/register", h.Register, middleware.RateLimit(rdb, "register", 5, time.Minute))
		g.POST("/login", h.Login, middleware.RateLimit(rdb, "login", 10, time.Minute))
		g.POST("/google", h.Google, middleware.RateLimit(rdb, "google", 10, time.Minute))
	} else {
		g.POST("/register", h.Register)
		g.POST("/login", h.Login)
		g.POST("/google", h.Google)
	}

	g.GET("/logout", h.Logout)
	g.GET("/me", h.Me, guard.Authenticate())
}
