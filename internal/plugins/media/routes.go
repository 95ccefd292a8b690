package media

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/atlas/internal/middleware"
)

// RegisterRoutes sets up all media-related routes on the given Echo instance.
// maxUploadSize is used to limit request body size on the upload endpoint so
// oversized payloads are rejected before being read into memory.
func RegisterRoutes(e *echo.Echo, h *Handler, proxy *Proxy, rdb *redis.Client, maxUploadSize int64) {
	api := e.Group("/api")

	// Rate limit uploads: 30 per minute per IP.
	uploadRateLimit := middleware.RateLimit(rdb, "upload", 30, time.Minute)

	// Bulk endpoints fan out to the drive once per item.
	bulkRateLimit := middleware.RateLimit(rdb, "bulk", 10, time.Minute)

	// Limit upload body size to prevent memory exhaustion from oversized payloads.
	// Uses a 10% margin above maxUploadSize to account for multipart encoding overhead.
	bodyLimit := bodyLimitMiddleware(maxUploadSize + maxUploadSize/10)

	api.GET("/media/files", h.Files)
	api.GET("/media/:entityType/:entityId", h.List)
	api.POST("/media/upload", h.Upload, uploadRateLimit, bodyLimit)
	api.POST("/media/reorder", h.Reorder)
	api.POST("/media/link", h.Link)
	api.PUT("/media/:mediaId/update-metadata", h.UpdateMetadata)
	api.DELETE("/media/:mediaId", h.Delete)

	api.POST("/update-media-previews", h.UpdatePreviews, bulkRateLimit)
	api.POST("/refresh-links", h.RefreshLinks, bulkRateLimit)

	// Every rendered thumbnail goes through the proxy, so its budget is wide.
	api.GET("/proxy-image", proxy.Serve, middleware.RateLimit(rdb, "proxy", 600, time.Minute))
}

// bodyLimitMiddleware returns middleware that rejects request bodies exceeding
// the given size in bytes. Applied before the handler reads the body into memory.
func bodyLimitMiddleware(maxBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().ContentLength > maxBytes {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
					fmt.Sprintf("request body too large; maximum is %d MB", maxBytes/(1024*1024)))
			}
			c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxBytes)
			return next(c)
		}
	}
}
