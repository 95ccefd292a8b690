package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/keyxmakerx/atlas/internal/apperror"
	"github.com/keyxmakerx/atlas/internal/drive"
	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
	"github.com/keyxmakerx/atlas/internal/sanitize"
)

// errNoPreview is reported per item when a non-image has no preview object.
var errNoPreview = errors.New("no preview available")

// MediaService handles business logic for media operations.
type MediaService interface {
	List(ctx context.Context, ref entity.Ref) ([]mediaapi.Item, error)
	Upload(ctx context.Context, input UploadInput) (*mediaapi.Item, error)
	Detach(ctx context.Context, ref entity.Ref, fileID string) error
	UpdateMetadata(ctx context.Context, fileID string, req mediaapi.UpdateMetadataRequest) (*mediaapi.File, error)
	Reorder(ctx context.Context, ref entity.Ref, orderedIDs []string) error
	Link(ctx context.Context, ref entity.Ref, fileID, relationType string) (*mediaapi.Item, error)
	Search(ctx context.Context, params mediaapi.SearchParams) ([]mediaapi.File, error)
	UpdatePreviews(ctx context.Context, fileIDs []string) mediaapi.BulkResponse
	RefreshLinks(ctx context.Context, items []mediaapi.RefreshLinkItem) mediaapi.BulkResponse
}

// Activity actions reported to the ActivityRecorder.
const (
	ActionUploaded         = "media.uploaded"
	ActionDetached         = "media.detached"
	ActionLinked           = "media.linked"
	ActionReordered        = "media.reordered"
	ActionUpdated          = "media.updated"
	ActionPreviewRefreshed = "media.preview_refreshed"
	ActionLinkRefreshed    = "media.link_refreshed"
)

// ActivityRecorder receives every successful mutation. Implementations must
// not block the caller on failure. ref is zero for file-level actions.
type ActivityRecorder interface {
	Record(ctx context.Context, action string, ref entity.Ref, mediaID string, details map[string]any)
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, string, entity.Ref, string, map[string]any) {}

// ServiceConfig holds the link lifetimes and limits the service enforces.
type ServiceConfig struct {
	LinkTTL      time.Duration
	ThumbnailTTL time.Duration
	MaxSize      int64

	// DriveRate caps drive calls per second inside bulk operations.
	DriveRate rate.Limit

	// Recorder receives the activity feed. Nil disables it.
	Recorder ActivityRecorder
}

// mediaService implements MediaService.
type mediaService struct {
	repo    MediaRepository
	drive   drive.Provider
	cfg     ServiceConfig
	limiter *rate.Limiter
	events  ActivityRecorder
	now     func() time.Time
}

// NewMediaService creates a new media service.
func NewMediaService(repo MediaRepository, provider drive.Provider, cfg ServiceConfig) MediaService {
	if cfg.DriveRate <= 0 {
		cfg.DriveRate = 10
	}
	var events ActivityRecorder = noopRecorder{}
	if cfg.Recorder != nil {
		events = cfg.Recorder
	}
	return &mediaService{
		events:  events,
		repo:    repo,
		drive:   provider,
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.DriveRate, 1),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns the attachments of ref in display order.
func (s *mediaService) List(ctx context.Context, ref entity.Ref) ([]mediaapi.Item, error) {
	return s.repo.ListByEntity(ctx, ref)
}

// Upload stores the bytes on the drive, renders a preview for images, and
// records the file together with its first attachment.
func (s *mediaService) Upload(ctx context.Context, input UploadInput) (*mediaapi.Item, error) {
	if input.FileSize <= 0 {
		return nil, apperror.NewBadRequest("file is empty")
	}
	if input.FileSize > s.cfg.MaxSize {
		return nil, apperror.NewTooLarge(fmt.Sprintf("file too large; maximum size is %d MB", s.cfg.MaxSize/(1024*1024)))
	}

	br := bufio.NewReaderSize(input.Body, 512)
	head, _ := br.Peek(512)
	mimeType := normalizeMIME(input.MimeType, head)
	fileType := mediaapi.ClassifyMIME(mimeType)

	now := s.now()
	id := uuid.NewString()
	rec := &FileRecord{
		File: mediaapi.File{
			ID:          id,
			FileName:    sanitize.FileName(input.FileName),
			FileType:    fileType,
			MimeType:    mimeType,
			FileSize:    input.FileSize,
			Description: sanitize.Text(input.Description),
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	rec.ObjectKey = objectKey(id, rec.FileName, now)

	var body io.Reader = br
	var data []byte
	if fileType == mediaapi.FileTypeImage {
		var err error
		data, err = io.ReadAll(io.LimitReader(br, s.cfg.MaxSize+1))
		if err != nil {
			return nil, apperror.NewBadRequest("could not read uploaded file")
		}
		body = bytes.NewReader(data)
	}

	if err := s.drive.Put(ctx, rec.ObjectKey, mimeType, body, input.FileSize); err != nil {
		return nil, apperror.NewUpstream("storing file on drive failed", err)
	}
	rec.PublicURL = s.drive.PublicURL(rec.ObjectKey)

	fileURL, err := s.drive.SignedURL(ctx, rec.ObjectKey, s.cfg.LinkTTL)
	if err != nil {
		s.removeObjects(rec)
		return nil, apperror.NewUpstream("issuing file link failed", err)
	}
	rec.FileURL = fileURL

	if data != nil {
		s.attachImagePreview(ctx, rec, data, now)
	}

	item, err := s.repo.CreateWithAttachment(ctx, rec, input.Ref)
	if err != nil {
		s.removeObjects(rec)
		return nil, apperror.NewInternal(fmt.Errorf("saving media record: %w", err))
	}

	slog.Info("media file uploaded",
		slog.String("id", id),
		slog.String("entity", input.Ref.String()),
		slog.String("file_type", string(fileType)),
		slog.Int64("size", input.FileSize),
	)
	s.events.Record(ctx, ActionUploaded, input.Ref, id, map[string]any{
		"file_name": rec.FileName,
		"file_type": string(fileType),
		"file_size": input.FileSize,
	})
	return item, nil
}

// attachImagePreview renders and stores the preview of an uploaded image.
// Failure leaves the record without a thumbnail; the upload still succeeds.
func (s *mediaService) attachImagePreview(ctx context.Context, rec *FileRecord, data []byte, now time.Time) {
	preview, err := drive.RenderPreview(data, drive.PreviewMaxDim)
	if err != nil {
		slog.Warn("preview generation failed",
			slog.String("file_id", rec.ID),
			slog.Any("error", err),
		)
		return
	}
	rec.Width = &preview.SourceWidth
	rec.Height = &preview.SourceHeight

	thumbURL, thumbKey, err := s.storePreview(ctx, rec.ObjectKey, preview)
	if err != nil {
		slog.Warn("storing preview failed",
			slog.String("file_id", rec.ID),
			slog.Any("error", err),
		)
		return
	}
	rec.ThumbnailKey = thumbKey
	rec.ThumbnailURL = thumbURL
	rec.ThumbnailUpdatedAt = &now
}

// storePreview writes a rendered preview next to its source and signs it.
func (s *mediaService) storePreview(ctx context.Context, objectKey string, preview *drive.Preview) (url, key string, err error) {
	key = drive.ThumbnailKey(objectKey)
	if err := s.drive.Put(ctx, key, "image/jpeg", bytes.NewReader(preview.JPEG), int64(len(preview.JPEG))); err != nil {
		return "", "", fmt.Errorf("writing preview: %w", err)
	}
	url, err = s.drive.SignedURL(ctx, key, s.cfg.ThumbnailTTL)
	if err != nil {
		return "", "", fmt.Errorf("signing preview: %w", err)
	}
	return url, key, nil
}

// removeObjects deletes the objects of a record that was never saved.
func (s *mediaService) removeObjects(rec *FileRecord) {
	ctx := context.Background()
	for _, key := range []string{rec.ObjectKey, rec.ThumbnailKey} {
		if key == "" {
			continue
		}
		if err := s.drive.Remove(ctx, key); err != nil {
			slog.Warn("removing orphaned object failed",
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}
}

// Detach removes the attachment only.
func (s *mediaService) Detach(ctx context.Context, ref entity.Ref, fileID string) error {
	if err := s.repo.Detach(ctx, fileID, ref); err != nil {
		return err
	}
	slog.Info("media detached",
		slog.String("id", fileID),
		slog.String("entity", ref.String()),
	)
	s.events.Record(ctx, ActionDetached, ref, fileID, nil)
	return nil
}

// UpdateMetadata applies a partial update and returns the stored record.
func (s *mediaService) UpdateMetadata(ctx context.Context, fileID string, req mediaapi.UpdateMetadataRequest) (*mediaapi.File, error) {
	if req.Empty() {
		return nil, apperror.NewBadRequest("no fields to update")
	}
	if req.DurationSeconds != nil && *req.DurationSeconds < 0 {
		return nil, apperror.NewValidation("duration_seconds must not be negative")
	}
	if req.Width != nil && *req.Width < 0 {
		return nil, apperror.NewValidation("width must not be negative")
	}
	if req.Height != nil && *req.Height < 0 {
		return nil, apperror.NewValidation("height must not be negative")
	}
	if req.Description != nil {
		desc := sanitize.Text(*req.Description)
		req.Description = &desc
	}

	if err := s.repo.UpdateMetadata(ctx, fileID, req); err != nil {
		return nil, err
	}
	rec, err := s.repo.FindFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	s.events.Record(ctx, ActionUpdated, entity.Ref{}, fileID, map[string]any{"fields": req.Fields()})
	return &rec.File, nil
}

// Reorder persists a complete new order for ref.
func (s *mediaService) Reorder(ctx context.Context, ref entity.Ref, orderedIDs []string) error {
	if err := s.repo.Reorder(ctx, ref, orderedIDs); err != nil {
		return err
	}
	slog.Info("media reordered",
		slog.String("entity", ref.String()),
		slog.Int("count", len(orderedIDs)),
	)
	s.events.Record(ctx, ActionReordered, ref, "", map[string]any{"order": orderedIDs})
	return nil
}

// Link attaches an existing catalog file to ref.
func (s *mediaService) Link(ctx context.Context, ref entity.Ref, fileID, relationType string) (*mediaapi.Item, error) {
	if fileID == "" {
		return nil, apperror.NewBadRequest("mediaFileId is required")
	}
	if relationType == "" {
		relationType = mediaapi.RelationPrimary
	}
	if _, err := s.repo.FindFile(ctx, fileID); err != nil {
		return nil, err
	}
	if err := s.repo.Attach(ctx, fileID, ref, relationType); err != nil {
		return nil, err
	}
	s.events.Record(ctx, ActionLinked, ref, fileID, map[string]any{"relation_type": relationType})
	return s.repo.FindItem(ctx, ref, fileID, relationType)
}

// Search queries the catalog. An unknown type filter is a client error.
func (s *mediaService) Search(ctx context.Context, params mediaapi.SearchParams) ([]mediaapi.File, error) {
	if params.FileType != "" && !params.FileType.Valid() {
		return nil, apperror.NewBadRequest("unknown file_type " + string(params.FileType))
	}
	if params.ExcludeEntityType != "" {
		t, err := entity.Parse(params.ExcludeEntityType)
		if err != nil {
			return nil, apperror.NewBadRequest(err.Error())
		}
		params.ExcludeEntityType = string(t)
	}
	params.Search = sanitize.Text(params.Search)
	params.Limit = mediaapi.ClampLimit(params.Limit)
	return s.repo.Search(ctx, params)
}

// UpdatePreviews regenerates or re-signs the preview of each file. One
// item's failure never stops the rest.
func (s *mediaService) UpdatePreviews(ctx context.Context, fileIDs []string) mediaapi.BulkResponse {
	results := make([]mediaapi.ItemResult, 0, len(fileIDs))
	for _, id := range fileIDs {
		result := mediaapi.ItemResult{ID: id}
		if err := s.limiter.Wait(ctx); err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		url, at, err := s.updatePreview(ctx, id)
		if err != nil {
			result.Error = itemError(id, "preview update", err)
		} else {
			result.Success = true
			result.ThumbnailURL = url
			result.ThumbnailUpdatedAt = &at
			s.events.Record(ctx, ActionPreviewRefreshed, entity.Ref{}, id, nil)
		}
		results = append(results, result)
	}
	resp := mediaapi.NewBulkResponse(results)
	slog.Info("media previews updated",
		slog.Int("succeeded", resp.Succeeded),
		slog.Int("failed", resp.Failed),
	)
	return resp
}

func (s *mediaService) updatePreview(ctx context.Context, id string) (string, time.Time, error) {
	rec, err := s.repo.FindFile(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}

	now := s.now()
	var url, key string
	if rec.FileType == mediaapi.FileTypeImage {
		url, key, err = s.renderStoredImage(ctx, rec)
	} else {
		url, key, err = s.signExistingPreview(ctx, rec)
	}
	if err != nil {
		return "", time.Time{}, err
	}

	if err := s.repo.UpdateThumbnail(ctx, id, key, url, now); err != nil {
		return "", time.Time{}, err
	}
	return url, now, nil
}

// renderStoredImage re-renders the preview of an image from its stored bytes.
func (s *mediaService) renderStoredImage(ctx context.Context, rec *FileRecord) (string, string, error) {
	obj, err := s.drive.Get(ctx, rec.ObjectKey)
	if err != nil {
		return "", "", err
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(io.LimitReader(obj.Body, s.cfg.MaxSize+1))
	if err != nil {
		return "", "", fmt.Errorf("reading image: %w", err)
	}
	preview, err := drive.RenderPreview(data, drive.PreviewMaxDim)
	if err != nil {
		return "", "", err
	}
	return s.storePreview(ctx, rec.ObjectKey, preview)
}

// signExistingPreview re-signs a preview that an external generator left on
// the drive, at the recorded key or the conventional one.
func (s *mediaService) signExistingPreview(ctx context.Context, rec *FileRecord) (string, string, error) {
	candidates := []string{drive.ThumbnailKey(rec.ObjectKey)}
	if rec.ThumbnailKey != "" && rec.ThumbnailKey != candidates[0] {
		candidates = append([]string{rec.ThumbnailKey}, candidates...)
	}
	for _, key := range candidates {
		ok, err := s.drive.Exists(ctx, key)
		if err != nil {
			return "", "", err
		}
		if !ok {
			continue
		}
		url, err := s.drive.SignedURL(ctx, key, s.cfg.ThumbnailTTL)
		if err != nil {
			return "", "", err
		}
		return url, key, nil
	}
	return "", "", errNoPreview
}

// RefreshLinks re-issues the file link (and thumbnail link, when a preview
// exists) of each item.
func (s *mediaService) RefreshLinks(ctx context.Context, items []mediaapi.RefreshLinkItem) mediaapi.BulkResponse {
	results := make([]mediaapi.ItemResult, 0, len(items))
	for _, it := range items {
		result := mediaapi.ItemResult{ID: it.ID}
		if err := s.limiter.Wait(ctx); err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		fileURL, thumbURL, err := s.refreshLink(ctx, it)
		if err != nil {
			result.Error = itemError(it.ID, "link refresh", err)
		} else {
			result.Success = true
			result.FileURL = fileURL
			result.ThumbnailURL = thumbURL
			s.events.Record(ctx, ActionLinkRefreshed, entity.Ref{}, it.ID, nil)
		}
		results = append(results, result)
	}
	resp := mediaapi.NewBulkResponse(results)
	slog.Info("media links refreshed",
		slog.Int("succeeded", resp.Succeeded),
		slog.Int("failed", resp.Failed),
	)
	return resp
}

func (s *mediaService) refreshLink(ctx context.Context, it mediaapi.RefreshLinkItem) (string, string, error) {
	if it.PublicURL == "" {
		return "", "", apperror.NewBadRequest("publicUrl is required")
	}
	key, ok := s.drive.KeyFromURL(it.PublicURL)
	if !ok {
		return "", "", apperror.NewBadRequest("publicUrl does not point into the drive")
	}
	rec, err := s.repo.FindFile(ctx, it.ID)
	if err != nil {
		return "", "", err
	}
	if rec.ObjectKey != key {
		return "", "", apperror.NewBadRequest("publicUrl does not belong to this media file")
	}

	fileURL, err := s.drive.SignedURL(ctx, key, s.cfg.LinkTTL)
	if err != nil {
		return "", "", err
	}
	var thumbURL string
	if rec.ThumbnailKey != "" {
		thumbURL, err = s.drive.SignedURL(ctx, rec.ThumbnailKey, s.cfg.ThumbnailTTL)
		if err != nil {
			return "", "", err
		}
	}
	if err := s.repo.UpdateLinks(ctx, it.ID, fileURL, thumbURL); err != nil {
		return "", "", err
	}
	return fileURL, thumbURL, nil
}

// itemError turns a per-item failure into its client message. Domain errors
// keep their message; anything else is logged and reported generically.
func itemError(id, op string, err error) string {
	var appErr *apperror.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.Message
	case errors.Is(err, errNoPreview):
		return errNoPreview.Error()
	case errors.Is(err, drive.ErrObjectNotFound):
		return "file is missing from the drive"
	case errors.Is(err, drive.ErrNotDecodable):
		return "file is not a decodable image"
	}
	slog.Error(op+" failed",
		slog.String("id", id),
		slog.Any("error", err),
	)
	return op + " failed"
}

// normalizeMIME strips parameters from the declared type and sniffs the
// content when the client sent nothing useful.
func normalizeMIME(declared string, head []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	return mt
}
