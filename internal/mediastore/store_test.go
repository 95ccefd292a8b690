package mediastore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
	"github.com/keyxmakerx/atlas/internal/mediaclient"
)

var muscle42 = entity.Ref{Type: entity.Muscle, ID: "42"}

func testOptions() Options {
	return Options{
		PreviewDelay: time.Millisecond,
		BulkInterval: -1,
		Now:          func() time.Time { return testNow },
	}
}

func newTestStore(api *fakeAPI) (*Store, *DiagnosticLog) {
	log := NewDiagnosticLog(0, nil)
	log.SetEnabled(true)
	return New(muscle42, api, log, testOptions()), log
}

func ids(items []mediaapi.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func withItems(list ...mediaapi.Item) func(context.Context, entity.Ref) ([]mediaapi.Item, error) {
	return func(context.Context, entity.Ref) ([]mediaapi.Item, error) {
		return slices.Clone(list), nil
	}
}

func item(id string, order int) mediaapi.Item {
	return mediaapi.Item{File: mediaapi.File{ID: id, FileType: mediaapi.FileTypeImage}, DisplayOrder: order}
}

// memoryServer keeps one entity's attachments in display order.
type memoryServer struct {
	mu    sync.Mutex
	items []mediaapi.Item
}

func (m *memoryServer) api() *fakeAPI {
	return &fakeAPI{
		listFn: func(context.Context, entity.Ref) ([]mediaapi.Item, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			return slices.Clone(m.items), nil
		},
		reorderFn: func(_ context.Context, _ entity.Ref, ordered []string) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.items = applyOrder(m.items, ordered)
			return nil
		},
	}
}

// --- Fetch ---

func TestFetch_ReplacesCollection(t *testing.T) {
	api := &fakeAPI{listFn: withItems(item("a", 0), item("b", 1))}
	s, _ := newTestStore(api)

	s.Fetch(t.Context())
	assert.Equal(t, []string{"a", "b"}, ids(s.Items()))
	assert.NoError(t, s.Err())
	assert.False(t, s.Loading())
}

func TestFetch_FailureCollapsesToEmpty(t *testing.T) {
	calls := 0
	api := &fakeAPI{listFn: func(context.Context, entity.Ref) ([]mediaapi.Item, error) {
		calls++
		if calls == 1 {
			return []mediaapi.Item{item("a", 0)}, nil
		}
		return nil, errBoom
	}}
	s, log := newTestStore(api)

	s.Fetch(t.Context())
	require.Len(t, s.Items(), 1)

	s.Fetch(t.Context())
	assert.NotNil(t, s.Items())
	assert.Empty(t, s.Items())
	assert.ErrorIs(t, s.Err(), errBoom)

	lines := log.Lines()
	assert.True(t, lines[len(lines)-1].Failed)
}

// --- Upload ---

func TestUpload_EmptyFileRejected(t *testing.T) {
	api := &fakeAPI{}
	s, log := newTestStore(api)

	_, err := s.Upload(t.Context(), "empty.png", 0, strings.NewReader(""), "")
	assert.ErrorIs(t, err, ErrEmptyFile)
	assert.Zero(t, api.count("upload"))
	assert.Len(t, log.Lines(), 1)
}

func TestUpload_ImageWithThumbnailHasNoDeferredPreview(t *testing.T) {
	api := &fakeAPI{uploadFn: func(_ context.Context, _ entity.Ref, name string, _ io.Reader, _ string) (*mediaapi.Item, error) {
		return &mediaapi.Item{File: mediaapi.File{ID: "img", FileName: name, FileType: mediaapi.FileTypeImage, ThumbnailURL: "https://drive.test/t.jpg"}}, nil
	}}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	_, err := s.Upload(t.Context(), "deltoid.png", 10, strings.NewReader("0123456789"), "")
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, []string{"img"}, ids(s.Items()))
	assert.Zero(t, api.count("update-previews"))
}

func TestUpload_VideoSchedulesOneDeferredPreview(t *testing.T) {
	refreshed := testNow.Add(time.Minute)
	var got []string
	api := &fakeAPI{
		listFn: withItems(item("a", 0)),
		uploadFn: func(context.Context, entity.Ref, string, io.Reader, string) (*mediaapi.Item, error) {
			return &mediaapi.Item{File: mediaapi.File{ID: "vid", FileType: mediaapi.FileTypeVideo}, DisplayOrder: 1}, nil
		},
		updatePreviewsFn: func(_ context.Context, _ entity.Ref, mediaIDs []string) (mediaapi.BulkResponse, error) {
			got = mediaIDs
			return mediaapi.NewBulkResponse([]mediaapi.ItemResult{
				{ID: "vid", Success: true, ThumbnailURL: "https://drive.test/vid.thumb.jpg", ThumbnailUpdatedAt: &refreshed},
			}), nil
		},
	}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	_, err := s.Upload(t.Context(), "gait.mp4", 4, strings.NewReader("data"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "vid"}, ids(s.Items()))

	s.Wait()
	assert.Equal(t, 1, api.count("update-previews"))
	assert.Equal(t, []string{"vid"}, got)
	items := s.Items()
	assert.Equal(t, "https://drive.test/vid.thumb.jpg", items[1].ThumbnailURL)
	assert.Equal(t, refreshed, *items[1].ThumbnailUpdatedAt)
}

func TestUpload_DeferredPreviewFailureIsLoggedNotRetried(t *testing.T) {
	api := &fakeAPI{
		uploadFn: func(context.Context, entity.Ref, string, io.Reader, string) (*mediaapi.Item, error) {
			return &mediaapi.Item{File: mediaapi.File{ID: "doc", FileType: mediaapi.FileTypeDocument}}, nil
		},
		updatePreviewsFn: func(context.Context, entity.Ref, []string) (mediaapi.BulkResponse, error) {
			return mediaapi.BulkResponse{}, errBoom
		},
	}
	s, log := newTestStore(api)

	_, err := s.Upload(t.Context(), "notes.pdf", 4, strings.NewReader("data"), "")
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, 1, api.count("update-previews"))
	lines := log.Lines()
	last := lines[len(lines)-1]
	assert.Equal(t, "deferred-preview", last.Op)
	assert.True(t, last.Failed)
}

func TestUpload_ServerFailurePropagates(t *testing.T) {
	api := &fakeAPI{uploadFn: func(context.Context, entity.Ref, string, io.Reader, string) (*mediaapi.Item, error) {
		return nil, errBoom
	}}
	s, log := newTestStore(api)

	_, err := s.Upload(t.Context(), "a.png", 1, strings.NewReader("x"), "")
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, s.Items())
	assert.True(t, log.Lines()[0].Failed)
}

// --- Delete ---

func TestDelete_FailureKeepsItem(t *testing.T) {
	api := &fakeAPI{
		listFn:   withItems(item("x", 0), item("y", 1)),
		deleteFn: func(context.Context, entity.Ref, string) error { return errBoom },
	}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	assert.ErrorIs(t, s.Delete(t.Context(), "x"), errBoom)
	assert.Equal(t, []string{"x", "y"}, ids(s.Items()))
}

func TestDelete_RemovesAfterAcknowledgment(t *testing.T) {
	api := &fakeAPI{listFn: withItems(item("x", 0), item("y", 1))}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	require.NoError(t, s.Delete(t.Context(), "x"))
	assert.Equal(t, []string{"y"}, ids(s.Items()))
}

func TestDelete_NotFoundDropsItem(t *testing.T) {
	gone := &mediaclient.APIError{Status: http.StatusNotFound, Message: "media is not attached to this entity"}
	api := &fakeAPI{
		listFn:   withItems(item("a", 0), item("gone", 1)),
		deleteFn: func(context.Context, entity.Ref, string) error { return gone },
	}
	s, log := newTestStore(api)
	s.Fetch(t.Context())

	err := s.Delete(t.Context(), "gone")
	assert.True(t, mediaclient.IsStatus(err, http.StatusNotFound))
	assert.Equal(t, []string{"a"}, ids(s.Items()))

	lines := log.Lines()
	last := lines[len(lines)-1]
	assert.True(t, last.Failed)
	assert.Contains(t, last.Message, "dropped locally")
}

func TestDelete_ServerErrorStatusKeepsItem(t *testing.T) {
	api := &fakeAPI{
		listFn: withItems(item("a", 0)),
		deleteFn: func(context.Context, entity.Ref, string) error {
			return &mediaclient.APIError{Status: http.StatusInternalServerError, Message: "db down"}
		},
	}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	assert.Error(t, s.Delete(t.Context(), "a"))
	assert.Equal(t, []string{"a"}, ids(s.Items()))
}

// --- Reorder ---

func TestReorder_LastAcknowledgmentWins(t *testing.T) {
	api := &fakeAPI{listFn: withItems(item("a", 0), item("b", 1), item("c", 2))}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	require.NoError(t, s.Reorder(t.Context(), []string{"a", "b", "c"}))
	require.NoError(t, s.Reorder(t.Context(), []string{"c", "b", "a"}))

	items := s.Items()
	assert.Equal(t, []string{"c", "b", "a"}, ids(items))
	assert.Equal(t, 0, items[0].DisplayOrder)
	assert.Equal(t, 2, items[2].DisplayOrder)
}

func TestReorder_LaterResolvingResponseWins(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		listFn: withItems(item("a", 0), item("b", 1)),
		reorderFn: func(_ context.Context, _ entity.Ref, ordered []string) error {
			if ordered[0] == "b" {
				<-release
			}
			return nil
		},
	}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	done := make(chan error)
	go func() { done <- s.Reorder(context.Background(), []string{"b", "a"}) }()

	require.NoError(t, s.Reorder(t.Context(), []string{"a", "b"}))
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"b", "a"}, ids(s.Items()))
}

func TestReorder_FailureKeepsOrder(t *testing.T) {
	api := &fakeAPI{
		listFn:    withItems(item("a", 0), item("b", 1)),
		reorderFn: func(context.Context, entity.Ref, []string) error { return errBoom },
	}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	assert.ErrorIs(t, s.Reorder(t.Context(), []string{"b", "a"}), errBoom)
	assert.Equal(t, []string{"a", "b"}, ids(s.Items()))
}

func TestReorder_EndToEnd(t *testing.T) {
	server := &memoryServer{items: []mediaapi.Item{item("a", 0), item("b", 1)}}
	s, _ := newTestStore(server.api())
	s.Fetch(t.Context())

	require.NoError(t, s.Reorder(t.Context(), []string{"b", "a"}))

	fresh, _ := newTestStore(server.api())
	fresh.Fetch(t.Context())
	assert.Equal(t, []string{"b", "a"}, ids(fresh.Items()))
}

// --- Metadata ---

func TestUpdateMetadata_MergesSuppliedFieldsOnly(t *testing.T) {
	width := 640
	existing := item("v", 0)
	existing.Description = "old"
	existing.Height = &width
	api := &fakeAPI{listFn: withItems(existing)}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	newWidth := 1280
	desc := "new"
	require.NoError(t, s.UpdateMetadata(t.Context(), "v", mediaapi.UpdateMetadataRequest{Description: &desc, Width: &newWidth}))

	got := s.Items()[0]
	assert.Equal(t, "new", got.Description)
	assert.Equal(t, 1280, *got.Width)
	assert.Equal(t, 640, *got.Height)
	assert.Nil(t, got.DurationSeconds)
}

func TestUpdateMetadata_FailureLeavesState(t *testing.T) {
	existing := item("v", 0)
	existing.Description = "old"
	api := &fakeAPI{
		listFn: withItems(existing),
		updateMetadataFn: func(context.Context, string, mediaapi.UpdateMetadataRequest) (*mediaapi.File, error) {
			return nil, errBoom
		},
	}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	desc := "new"
	assert.ErrorIs(t, s.UpdateMetadata(t.Context(), "v", mediaapi.UpdateMetadataRequest{Description: &desc}), errBoom)
	assert.Equal(t, "old", s.Items()[0].Description)
}

// --- Link ---

func TestUpdateMetadata_NotFoundDropsItem(t *testing.T) {
	api := &fakeAPI{
		listFn: withItems(item("a", 0), item("gone", 1)),
		updateMetadataFn: func(context.Context, string, mediaapi.UpdateMetadataRequest) (*mediaapi.File, error) {
			return nil, &mediaclient.APIError{Status: http.StatusNotFound, Message: "media file not found"}
		},
	}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	desc := "posterior"
	err := s.UpdateMetadata(t.Context(), "gone", mediaapi.UpdateMetadataRequest{Description: &desc})
	assert.Error(t, err)
	assert.Equal(t, []string{"a"}, ids(s.Items()))
}

func TestLink_AppendsAndRefusesDuplicates(t *testing.T) {
	api := &fakeAPI{listFn: withItems(item("a", 0))}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	linked, err := s.Link(t.Context(), "b")
	require.NoError(t, err)
	assert.Equal(t, mediaapi.RelationPrimary, linked.RelationType)
	assert.Equal(t, []string{"a", "b"}, ids(s.Items()))

	_, err = s.Link(t.Context(), "a")
	assert.ErrorIs(t, err, ErrAlreadyLinked)
	assert.Equal(t, 1, api.count("link"))
}

// --- Bulk ---

func TestRefreshLinks_PartialFailureContinues(t *testing.T) {
	withURL := func(id string) mediaapi.Item {
		it := item(id, 0)
		it.PublicURL = "https://drive.test/" + id
		return it
	}
	var sent []string
	api := &fakeAPI{
		listFn: withItems(withURL("a"), item("no-public", 1), withURL("b"), withURL("c")),
		refreshLinksFn: func(_ context.Context, _ entity.Ref, items []mediaapi.RefreshLinkItem) (mediaapi.BulkResponse, error) {
			sent = append(sent, items[0].ID)
			switch items[0].ID {
			case "b":
				return mediaapi.BulkResponse{}, errBoom
			case "c":
				return mediaapi.NewBulkResponse([]mediaapi.ItemResult{{ID: "c", Error: "file not found"}}), nil
			}
			return mediaapi.NewBulkResponse([]mediaapi.ItemResult{{ID: items[0].ID, Success: true}}), nil
		},
	}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	result, err := s.RefreshLinks(t.Context())
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, BulkResult{Attempted: 3, Succeeded: 1, Failed: 2}, result)
	assert.Equal(t, []string{"a", "b", "c"}, sent)
	assert.Equal(t, 2, api.count("list"), "bulk refresh must end with a full re-fetch")
}

func TestRefreshLinks_Throttled(t *testing.T) {
	withURL := func(id string) mediaapi.Item {
		it := item(id, 0)
		it.PublicURL = "https://drive.test/" + id
		return it
	}
	api := &fakeAPI{listFn: withItems(withURL("a"), withURL("b"), withURL("c"))}
	opts := testOptions()
	opts.BulkInterval = 30 * time.Millisecond
	s := New(muscle42, api, nil, opts)
	s.Fetch(t.Context())

	start := time.Now()
	result, err := s.RefreshLinks(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestRefreshPreviews_RequiresConfirmation(t *testing.T) {
	stale := mediaapi.Item{File: mediaapi.File{ID: "v", FileType: mediaapi.FileTypeVideo}}
	api := &fakeAPI{listFn: withItems(item("img", 0), stale)}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	var asked int
	_, err := s.RefreshPreviews(t.Context(), func(n int) bool { asked = n; return false })
	assert.True(t, errors.Is(err, ErrNotConfirmed))
	assert.Equal(t, 1, asked)
	assert.Zero(t, api.count("update-previews"))

	_, err = s.RefreshPreviews(t.Context(), nil)
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestRefreshPreviews_OnlyStaleItems(t *testing.T) {
	fresh := testNow.Add(-time.Hour)
	freshVideo := mediaapi.Item{File: mediaapi.File{ID: "fresh", FileType: mediaapi.FileTypeVideo, ThumbnailURL: "t", ThumbnailUpdatedAt: &fresh}}
	staleDoc := mediaapi.Item{File: mediaapi.File{ID: "doc", FileType: mediaapi.FileTypeDocument}}
	var sent []string
	api := &fakeAPI{
		listFn: withItems(item("img", 0), freshVideo, staleDoc),
		updatePreviewsFn: func(_ context.Context, _ entity.Ref, mediaIDs []string) (mediaapi.BulkResponse, error) {
			sent = append(sent, mediaIDs...)
			return mediaapi.NewBulkResponse([]mediaapi.ItemResult{{ID: mediaIDs[0], Success: true}}), nil
		},
	}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	result, err := s.RefreshPreviews(t.Context(), func(int) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, []string{"doc"}, sent)
	assert.Equal(t, BulkResult{Attempted: 1, Succeeded: 1}, result)
	assert.Equal(t, 2, api.count("list"))
}

func TestRefreshPreviews_NothingStale(t *testing.T) {
	api := &fakeAPI{listFn: withItems(item("img", 0))}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	result, err := s.RefreshPreviews(t.Context(), func(int) bool {
		t.Fatal("confirm must not be asked")
		return false
	})
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)
	assert.Equal(t, 2, api.count("list"), "refresh previews ends with a re-fetch even when nothing is stale")
}

func TestRefreshLinks_RefetchFailureIsReported(t *testing.T) {
	withURL := item("a", 0)
	withURL.PublicURL = "https://drive.test/a"
	calls := 0
	api := &fakeAPI{listFn: func(context.Context, entity.Ref) ([]mediaapi.Item, error) {
		calls++
		if calls == 1 {
			return []mediaapi.Item{withURL}, nil
		}
		return nil, errBoom
	}}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	result, err := s.RefreshLinks(t.Context())
	assert.Equal(t, BulkResult{Attempted: 1, Succeeded: 1}, result)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrIncomplete)
	assert.ErrorIs(t, s.Err(), errBoom)
}

// --- View ---

func TestView_DerivesPerCall(t *testing.T) {
	updated := testNow.Add(-time.Hour)
	video := mediaapi.Item{File: mediaapi.File{
		ID:                 "v",
		FileType:           mediaapi.FileTypeVideo,
		FileURL:            signedURL,
		ThumbnailURL:       "https://drive.test/v.thumb.jpg",
		ThumbnailUpdatedAt: &updated,
		UpdatedAt:          updated,
	}}
	api := &fakeAPI{listFn: withItems(video)}
	s, _ := newTestStore(api)
	s.Fetch(t.Context())

	row := s.View(testNow)[0]
	assert.False(t, row.LinkStale)
	assert.False(t, row.ThumbStale)
	assert.Contains(t, row.ProxyURL, ProxyPath+"?url=")

	later := s.View(testNow.Add(13 * time.Hour))[0]
	assert.True(t, later.LinkStale)
	assert.True(t, later.ThumbStale)
}
