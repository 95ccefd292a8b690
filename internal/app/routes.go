package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/keyxmakerx/atlas/internal/plugins/audit"
	"github.com/keyxmakerx/atlas/internal/plugins/media"
	"github.com/keyxmakerx/atlas/internal/widgets/relations"
)

// RegisterRoutes sets up all application routes. It registers the health
// check directly and delegates to each plugin's and widget's route
// registration function.
//
// This is the single place where all routes are aggregated.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Health check endpoint for container health monitoring.
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := a.healthCheck(ctx); err != nil {
			slog.Warn("health check failed", slog.Any("error", err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// --- Audit plugin ---
	auditService := audit.NewAuditService(audit.NewAuditRepository(a.DB))
	audit.RegisterRoutes(e, audit.NewHandler(auditService))

	// --- Media plugin ---
	mediaRepo := media.NewMediaRepository(a.DB)
	mediaService := media.NewMediaService(mediaRepo, a.Drive, media.ServiceConfig{
		LinkTTL:      a.Config.Drive.LinkTTL,
		ThumbnailTTL: a.Config.Drive.ThumbnailTTL,
		MaxSize:      a.Config.Upload.MaxSize,
		DriveRate:    rate.Limit(10),
		Recorder:     auditService,
	})
	mediaProxy := media.NewProxy(a.Drive, a.Redis, a.Config.Media.ProxyCacheTTL)
	media.RegisterRoutes(e, media.NewHandler(mediaService), mediaProxy, a.Redis, a.Config.Upload.MaxSize)

	// --- Relations widget ---
	relationService := relations.NewRelationService(relations.NewRelationRepository(a.DB))
	relations.RegisterRoutes(e, relations.NewHandler(relationService))
}
