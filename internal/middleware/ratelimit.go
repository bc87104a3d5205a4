// ratelimit.go implements a per-IP rate limiter using a fixed window
// counter stored in Redis, so limits hold across replicas and restarts.
// Designed for the auth endpoints (login, register, federated sign-in).
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimit returns middleware that limits requests per IP to maxRequests
// within the given window duration. Returns 429 when exceeded.
//
// The counter key is "ratelimit:<route>:<ip>". INCR creates the key at 1;
// the expiry is attached on first increment so the window starts with the
// first request. If Redis is unreachable the request is allowed through --
// rate limiting is protection, not a dependency.
func RateLimit(rdb *redis.Client, route string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := fmt.Sprintf("ratelimit:%s:%s", route, c.RealIP())

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request",
					slog.String("key", key),
					slog.Any("error", err),
				)
				return next(c)
			}

			if count == 1 {
				// First request in this window -- start the clock.
				if err := rdb.Expire(ctx, key, window).Err(); err != nil {
					slog.Warn("setting rate limit expiry failed",
						slog.String("key", key),
						slog.Any("error", err),
					)
				}
			}

			if count > int64(maxRequests) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "Rate limit exceeded. Please try again later.",
				})
			}

			return next(c)
		}
	}
}
