package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists origins permitted to call the API from a browser.
	// ["*"] allows all and disables credentials.
	AllowedOrigins []string

	// AllowCredentials lets browsers send cookies and auth headers.
	AllowCredentials bool
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}, ", ")

	corsHeaders = strings.Join([]string{
		"Content-Type",
		"Authorization",
		"X-Requested-With",
	}, ", ")

	corsExposed = strings.Join([]string{
		"Retry-After",
		"X-Proxy-Cache",
	}, ", ")
)

// CORS returns middleware that handles Cross-Origin Resource Sharing headers
// for the media API. The admin front end usually runs on its own origin
// during development, so it needs explicit permission to call /api/*.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	originSet := make(map[string]bool)
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}

	// SECURITY: wildcard origin with credentials would let any site make
	// authenticated requests.
	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS misconfiguration: AllowedOrigins=['*'] with AllowCredentials=true; credentials disabled")
		cfg.AllowCredentials = false
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			origin := req.Header.Get("Origin")

			// No Origin header means same-origin request.
			if origin == "" {
				return next(c)
			}

			// Unlisted origins get no CORS headers; the browser blocks them.
			if !allowAll && !originSet[origin] {
				return next(c)
			}

			res.Header().Set("Access-Control-Allow-Origin", origin)
			res.Header().Add("Vary", "Origin")
			if cfg.AllowCredentials {
				res.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if req.Method == http.MethodOptions {
				res.Header().Set("Access-Control-Allow-Methods", corsMethods)
				res.Header().Set("Access-Control-Allow-Headers", corsHeaders)
				res.Header().Set("Access-Control-Max-Age", "3600")
				return c.NoContent(http.StatusNoContent)
			}

			res.Header().Set("Access-Control-Expose-Headers", corsExposed)
			return next(c)
		}
	}
}
