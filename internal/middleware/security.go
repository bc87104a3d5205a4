package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns middleware that sets security-related HTTP headers
// on every response. These headers protect against common web attacks even
// if application-level vulnerabilities exist.
//
// Stackpad serves JSON to a SPA, so the CSP can be strict: nothing served
// from the API origin should ever execute as a document.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// Content-Security-Policy: the API never serves HTML documents,
			// so deny everything except same-origin images (avatars).
			h.Set("Content-Security-Policy",
				"default-src 'none'; img-src 'self'; frame-ancestors 'none'; base-uri 'none'",
			)

			// Strict-Transport-Security: enforce HTTPS for 1 year including
			// subdomains. TLS is terminated by the reverse proxy; this header
			// tells browsers to always use HTTPS for subsequent requests.
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			// X-Content-Type-Options: prevent MIME type sniffing.
			h.Set("X-Content-Type-Options", "nosniff")

			// X-Frame-Options: prevent clickjacking (redundant with CSP
			// frame-ancestors but some older browsers only support this header).
			h.Set("X-Frame-Options", "DENY")

			// Referrer-Policy: limit referrer information leaked to external sites.
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			return next(c)
		}
	}
}
