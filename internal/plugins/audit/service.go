package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyxmakerx/atlas/internal/apperror"
	"github.com/keyxmakerx/atlas/internal/entity"
)

// maxEntityHistoryEntries caps the number of history entries returned for a
// single entity to prevent unbounded result sets.
const maxEntityHistoryEntries = 100

// AuditService handles business logic for the audit log.
type AuditService interface {
	// Log validates and persists an entry.
	Log(ctx context.Context, entry *Entry) error

	// Record is the fire-and-forget form of Log used by the media plugin:
	// failures are logged, never returned, since an audit outage must not
	// fail the mutation it describes.
	Record(ctx context.Context, action string, ref entity.Ref, mediaID string, details map[string]any)

	// History returns the recent activity of one entity.
	History(ctx context.Context, ref entity.Ref) ([]Entry, error)
}

// auditService implements AuditService.
type auditService struct {
	repo AuditRepository
	now  func() time.Time
}

// NewAuditService creates a new audit service with the given repository.
func NewAuditService(repo AuditRepository) AuditService {
	return &auditService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Log validates and persists an audit entry. An entry needs an action and
// either an entity scope or a media id.
func (s *auditService) Log(ctx context.Context, entry *Entry) error {
	if entry.Action == "" {
		return apperror.NewBadRequest("action is required for audit entry")
	}
	if (entry.EntityType == "") != (entry.EntityID == "") {
		return apperror.NewBadRequest("entity type and id must be given together")
	}
	if entry.EntityType == "" && entry.MediaID == "" {
		return apperror.NewBadRequest("audit entry needs an entity or a media id")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	if err := s.repo.Log(ctx, entry); err != nil {
		slog.Error("failed to write audit log entry",
			slog.String("action", entry.Action),
			slog.String("media_id", entry.MediaID),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("writing audit entry: %w", err))
	}

	return nil
}

// Record logs an entry and swallows the error after logging it.
func (s *auditService) Record(ctx context.Context, action string, ref entity.Ref, mediaID string, details map[string]any) {
	entry := &Entry{
		Action:     action,
		EntityType: string(ref.Type),
		EntityID:   ref.ID,
		MediaID:    mediaID,
		Details:    details,
	}
	if err := s.Log(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("audit entry dropped",
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}

// History returns up to maxEntityHistoryEntries entries for ref.
func (s *auditService) History(ctx context.Context, ref entity.Ref) ([]Entry, error) {
	entries, err := s.repo.ListByEntity(ctx, ref, maxEntityHistoryEntries)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing entity history: %w", err))
	}
	return entries, nil
}
