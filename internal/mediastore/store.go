// Package mediastore keeps the ordered media collection of one entity in
// memory and routes every change through the media API. State only changes
// after the server has acknowledged a mutation; when two mutations race,
// the response that resolves last wins.
package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
	"github.com/keyxmakerx/atlas/internal/mediaclient"
)

var (
	// ErrEmptyFile is returned by Upload for a zero-byte file.
	ErrEmptyFile = errors.New("file is empty")

	// ErrAlreadyLinked is returned by Link when the file is already in the collection.
	ErrAlreadyLinked = errors.New("media is already linked to this entity")

	// ErrNotConfirmed is returned by RefreshPreviews when the caller declines.
	ErrNotConfirmed = errors.New("preview refresh not confirmed")

	// ErrIncomplete is wrapped by bulk operations when some items failed.
	ErrIncomplete = errors.New("some items failed")
)

// API is the media boundary the Store talks to. *mediaclient.Client
// implements it.
type API interface {
	List(ctx context.Context, ref entity.Ref) ([]mediaapi.Item, error)
	Upload(ctx context.Context, ref entity.Ref, fileName string, body io.Reader, description string) (*mediaapi.Item, error)
	Delete(ctx context.Context, ref entity.Ref, mediaID string) error
	UpdateMetadata(ctx context.Context, mediaID string, req mediaapi.UpdateMetadataRequest) (*mediaapi.File, error)
	Reorder(ctx context.Context, ref entity.Ref, orderedIDs []string) error
	Link(ctx context.Context, ref entity.Ref, mediaFileID, relationType string) (*mediaapi.Item, error)
	Search(ctx context.Context, params mediaapi.SearchParams) ([]mediaapi.File, error)
	UpdatePreviews(ctx context.Context, ref entity.Ref, mediaIDs []string) (mediaapi.BulkResponse, error)
	RefreshLinks(ctx context.Context, ref entity.Ref, items []mediaapi.RefreshLinkItem) (mediaapi.BulkResponse, error)
}

// Options tunes a Store. Zero durations fall back to the defaults below.
type Options struct {
	// PreviewDelay is the wait before the single post-upload preview request.
	PreviewDelay time.Duration

	// BulkInterval is the pause between per-item calls of bulk refreshes.
	BulkInterval time.Duration

	LinkStaleAfter  time.Duration
	ThumbStaleAfter time.Duration

	// PreviewTimeout bounds the deferred preview request.
	PreviewTimeout time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

const (
	defaultPreviewDelay   = 3 * time.Second
	defaultBulkInterval   = 500 * time.Millisecond
	defaultPreviewTimeout = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.PreviewDelay <= 0 {
		o.PreviewDelay = defaultPreviewDelay
	}
	if o.BulkInterval < 0 {
		o.BulkInterval = 0
	} else if o.BulkInterval == 0 {
		o.BulkInterval = defaultBulkInterval
	}
	if o.PreviewTimeout <= 0 {
		o.PreviewTimeout = defaultPreviewTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// BulkResult counts the per-item outcomes of a bulk refresh.
type BulkResult struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Row is one rendered entry: the item plus values derived at render time.
type Row struct {
	mediaapi.Item
	LinkStale  bool
	ThumbStale bool
	ProxyURL   string
}

// Store is the media collection of one entity. It is safe for concurrent use.
type Store struct {
	ref       entity.Ref
	api       API
	log       *DiagnosticLog
	opts      Options
	staleness Staleness

	mu      sync.Mutex
	items   []mediaapi.Item
	err     error
	loading bool

	// pending tracks deferred preview requests.
	pending sync.WaitGroup
}

// New creates the Store for ref. A nil log gets a disabled one.
func New(ref entity.Ref, api API, log *DiagnosticLog, opts Options) *Store {
	if log == nil {
		log = NewDiagnosticLog(0, nil)
	}
	opts = opts.withDefaults()
	return &Store{
		ref:       ref,
		api:       api,
		log:       log,
		opts:      opts,
		staleness: Staleness{LinkAfter: opts.LinkStaleAfter, ThumbnailAfter: opts.ThumbStaleAfter},
		items:     []mediaapi.Item{},
	}
}

// Ref returns the entity this Store belongs to.
func (s *Store) Ref() entity.Ref { return s.ref }

// Items returns a copy of the collection in display order.
func (s *Store) Items() []mediaapi.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Err returns the error of the last Fetch, or nil.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Loading reports whether a Fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// View derives the render rows at now. Nothing is cached between calls.
func (s *Store) View(now time.Time) []Row {
	items := s.Items()
	rows := make([]Row, len(items))
	for i, item := range items {
		rows[i] = Row{
			Item:       item,
			LinkStale:  s.staleness.LinkStale(item, now),
			ThumbStale: s.staleness.ThumbnailStale(item.File, now),
			ProxyURL:   GetProxyURL(item.File, now),
		}
	}
	return rows
}

// Wait blocks until every deferred preview request has finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

// Fetch replaces the collection with the server's list. On failure the
// collection becomes empty and the error is available from Err.
func (s *Store) Fetch(ctx context.Context) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	items, err := s.api.List(ctx, s.ref)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.items = []mediaapi.Item{}
		s.err = err
		s.record("fetch", err, "")
		return
	}
	if items == nil {
		items = []mediaapi.Item{}
	}
	s.items = items
	s.err = nil
	s.record("fetch", nil, "%d items", len(items))
}

// Upload sends one file and appends the created record. Video, documents,
// and anything returned without a thumbnail get a single deferred preview
// request after PreviewDelay.
func (s *Store) Upload(ctx context.Context, fileName string, size int64, body io.Reader, description string) (*mediaapi.Item, error) {
	if size <= 0 {
		s.record("upload", ErrEmptyFile, "%s", fileName)
		return nil, ErrEmptyFile
	}

	item, err := s.api.Upload(ctx, s.ref, fileName, body, description)
	if err != nil {
		s.record("upload", err, "%s", fileName)
		return nil, err
	}

	s.mu.Lock()
	s.items = append(s.items, *item)
	s.mu.Unlock()
	s.record("upload", nil, "%s as %s", fileName, item.ID)

	if needsDeferredPreview(item.File) {
		s.schedulePreview(item.ID)
	}
	return item, nil
}

func needsDeferredPreview(f mediaapi.File) bool {
	return f.FileType == mediaapi.FileTypeVideo ||
		f.FileType == mediaapi.FileTypeDocument ||
		f.ThumbnailURL == ""
}

// schedulePreview issues one best-effort preview request after the delay.
// It is not tied to any caller's context and is never retried.
func (s *Store) schedulePreview(id string) {
	s.pending.Add(1)
	time.AfterFunc(s.opts.PreviewDelay, func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PreviewTimeout)
		defer cancel()

		resp, err := s.api.UpdatePreviews(ctx, s.ref, []string{id})
		if err == nil && resp.Failed > 0 {
			err = itemFailure(resp.Results)
		}
		if err != nil {
			s.record("deferred-preview", err, "%s", id)
			return
		}
		s.mergePreviews(resp.Results)
		s.record("deferred-preview", nil, "%s", id)
	})
}

// mergePreviews copies refreshed preview fields onto matching items.
func (s *Store) mergePreviews(results []mediaapi.ItemResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		if !r.Success || r.ThumbnailURL == "" {
			continue
		}
		for i := range s.items {
			if s.items[i].ID == r.ID {
				s.items[i].ThumbnailURL = r.ThumbnailURL
				s.items[i].ThumbnailUpdatedAt = r.ThumbnailUpdatedAt
			}
		}
	}
}

// Delete detaches mediaID from the entity. The item is removed locally only
// after the server confirms, or when the server reports it no longer exists.
// In that case the 404 is still returned.
func (s *Store) Delete(ctx context.Context, mediaID string) error {
	if err := s.api.Delete(ctx, s.ref, mediaID); err != nil {
		s.dropIfGone("delete", mediaID, err)
		return err
	}
	s.drop(mediaID)
	s.record("delete", nil, "%s", mediaID)
	return nil
}

func (s *Store) drop(mediaID string) {
	s.mu.Lock()
	s.items = slices.DeleteFunc(s.items, func(it mediaapi.Item) bool { return it.ID == mediaID })
	s.mu.Unlock()
}

// dropIfGone records a failed mutation and, when the server answered 404,
// removes mediaID from the collection.
func (s *Store) dropIfGone(op, mediaID string, err error) {
	if !mediaclient.IsStatus(err, http.StatusNotFound) {
		s.record(op, err, "%s", mediaID)
		return
	}
	s.drop(mediaID)
	s.record(op, err, "%s no longer exists on the server; dropped locally", mediaID)
}

// Reorder sends the complete new order. Local order changes only after the
// server acknowledges it.
func (s *Store) Reorder(ctx context.Context, orderedIDs []string) error {
	if err := s.api.Reorder(ctx, s.ref, orderedIDs); err != nil {
		s.record("reorder", err, "%v", orderedIDs)
		return err
	}

	s.mu.Lock()
	s.items = applyOrder(s.items, orderedIDs)
	s.mu.Unlock()
	s.record("reorder", nil, "%v", orderedIDs)
	return nil
}

// applyOrder arranges items by ids and renumbers display_order. Items not
// named keep their relative order at the end.
func applyOrder(items []mediaapi.Item, ids []string) []mediaapi.Item {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b mediaapi.Item) int {
		pa, okA := pos[a.ID]
		pb, okB := pos[b.ID]
		switch {
		case okA && okB:
			return pa - pb
		case okA:
			return -1
		case okB:
			return 1
		}
		return 0
	})
	for i := range out {
		out[i].DisplayOrder = i
	}
	return out
}

// UpdateMetadata applies a partial update. Only supplied fields are merged
// into local state.
func (s *Store) UpdateMetadata(ctx context.Context, mediaID string, req mediaapi.UpdateMetadataRequest) error {
	if _, err := s.api.UpdateMetadata(ctx, mediaID, req); err != nil {
		s.dropIfGone("update-metadata", mediaID, err)
		return err
	}

	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID != mediaID {
			continue
		}
		f := &s.items[i].File
		if req.Description != nil {
			f.Description = *req.Description
		}
		if req.DurationSeconds != nil {
			f.DurationSeconds = req.DurationSeconds
		}
		if req.Width != nil {
			f.Width = req.Width
		}
		if req.Height != nil {
			f.Height = req.Height
		}
	}
	s.mu.Unlock()
	s.record("update-metadata", nil, "%s", mediaID)
	return nil
}

// Link attaches an existing catalog file and appends it. A file already in
// the collection is refused without calling the server.
func (s *Store) Link(ctx context.Context, mediaFileID string) (*mediaapi.Item, error) {
	s.mu.Lock()
	linked := slices.ContainsFunc(s.items, func(it mediaapi.Item) bool { return it.ID == mediaFileID })
	s.mu.Unlock()
	if linked {
		s.record("link", ErrAlreadyLinked, "%s", mediaFileID)
		return nil, ErrAlreadyLinked
	}

	item, err := s.api.Link(ctx, s.ref, mediaFileID, mediaapi.RelationPrimary)
	if err != nil {
		s.record("link", err, "%s", mediaFileID)
		return nil, err
	}
	s.mu.Lock()
	s.items = append(s.items, *item)
	s.mu.Unlock()
	s.record("link", nil, "%s", mediaFileID)
	return item, nil
}

// RefreshLinks re-issues links for every item with a public_url, one item
// at a time with BulkInterval between calls, then re-fetches. A failing
// item never stops the rest; the returned error wraps ErrIncomplete when
// any failed.
func (s *Store) RefreshLinks(ctx context.Context) (BulkResult, error) {
	var targets []mediaapi.Item
	for _, it := range s.Items() {
		if it.PublicURL != "" {
			targets = append(targets, it)
		}
	}

	return s.throttled(ctx, "refresh-links", targets, func(ctx context.Context, it mediaapi.Item) (mediaapi.BulkResponse, error) {
		return s.api.RefreshLinks(ctx, s.ref, []mediaapi.RefreshLinkItem{{
			ID:                  it.ID,
			FileName:            it.FileName,
			FileType:            it.FileType,
			PublicURL:           it.PublicURL,
			CurrentFileURL:      it.FileURL,
			CurrentThumbnailURL: it.ThumbnailURL,
		}})
	})
}

// RefreshPreviews regenerates every stale or missing preview. confirm is
// asked with the number of items first; declining returns ErrNotConfirmed
// and sends nothing. With nothing stale it only re-fetches.
func (s *Store) RefreshPreviews(ctx context.Context, confirm func(n int) bool) (BulkResult, error) {
	now := s.opts.Now()
	var targets []mediaapi.Item
	for _, it := range s.Items() {
		if s.staleness.ThumbnailStale(it.File, now) {
			targets = append(targets, it)
		}
	}
	if len(targets) == 0 {
		s.record("refresh-previews", nil, "nothing stale")
		return BulkResult{}, s.refetch(ctx, "refresh-previews")
	}
	if confirm == nil || !confirm(len(targets)) {
		s.record("refresh-previews", ErrNotConfirmed, "%d stale", len(targets))
		return BulkResult{}, ErrNotConfirmed
	}

	return s.throttled(ctx, "refresh-previews", targets, func(ctx context.Context, it mediaapi.Item) (mediaapi.BulkResponse, error) {
		return s.api.UpdatePreviews(ctx, s.ref, []string{it.ID})
	})
}

// throttled runs call once per target, spaced by BulkInterval, and always
// finishes with a Fetch. A failed re-fetch is part of the returned error.
func (s *Store) throttled(ctx context.Context, op string, targets []mediaapi.Item,
	call func(context.Context, mediaapi.Item) (mediaapi.BulkResponse, error)) (BulkResult, error) {

	result := BulkResult{Attempted: len(targets)}
	if len(targets) == 0 {
		s.record(op, nil, "nothing to refresh")
		return result, s.refetch(ctx, op)
	}

	limit := rate.Inf
	if s.opts.BulkInterval > 0 {
		limit = rate.Every(s.opts.BulkInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i, it := range targets {
		if err := limiter.Wait(ctx); err != nil {
			remaining := len(targets) - i
			result.Failed += remaining
			s.record(op, err, "%d items not sent", remaining)
			break
		}
		resp, err := call(ctx, it)
		if err == nil && resp.Failed > 0 {
			err = itemFailure(resp.Results)
		}
		if err != nil {
			result.Failed++
			s.record(op, err, "%s", it.ID)
			continue
		}
		result.Succeeded++
	}

	fetchErr := s.refetch(ctx, op)

	if result.Failed > 0 {
		err := fmt.Errorf("%s: %d of %d: %w", op, result.Failed, result.Attempted, ErrIncomplete)
		s.record(op, err, "")
		return result, errors.Join(err, fetchErr)
	}
	s.record(op, nil, "%d refreshed", result.Succeeded)
	return result, fetchErr
}

// refetch reloads the collection after a bulk operation, even when ctx is
// already cancelled, and reports a failed reload as an error.
func (s *Store) refetch(ctx context.Context, op string) error {
	s.Fetch(context.WithoutCancel(ctx))
	if err := s.Err(); err != nil {
		return fmt.Errorf("%s: re-fetch: %w", op, err)
	}
	return nil
}

// itemFailure turns the first failed result into an error.
func itemFailure(results []mediaapi.ItemResult) error {
	for _, r := range results {
		if !r.Success {
			if r.Error == "" {
				return fmt.Errorf("%s failed", r.ID)
			}
			return errors.New(r.Error)
		}
	}
	return errors.New("item failed")
}

func (s *Store) record(op string, err error, format string, args ...any) {
	s.log.Record(s.ref.String(), op, err, format, args...)
}
