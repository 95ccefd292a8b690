package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns middleware that sets security-related HTTP headers
// on every response. The server only answers JSON and proxied media, so the
// policy forbids everything a document could load.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// Nothing served here is a page; proxied media gets a stricter
			// sandbox policy from its own handler.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			// TLS terminates at the reverse proxy; browsers should stay on HTTPS.
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// Cross-origin pages may embed proxied thumbnails.
			h.Set("Cross-Origin-Resource-Policy", "same-site")

			return next(c)
		}
	}
}
