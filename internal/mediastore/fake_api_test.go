package mediastore

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

// fakeAPI implements API with fn fields. Unset calls succeed with empty data.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	listFn           func(ctx context.Context, ref entity.Ref) ([]mediaapi.Item, error)
	uploadFn         func(ctx context.Context, ref entity.Ref, fileName string, body io.Reader, description string) (*mediaapi.Item, error)
	deleteFn         func(ctx context.Context, ref entity.Ref, mediaID string) error
	updateMetadataFn func(ctx context.Context, mediaID string, req mediaapi.UpdateMetadataRequest) (*mediaapi.File, error)
	reorderFn        func(ctx context.Context, ref entity.Ref, orderedIDs []string) error
	linkFn           func(ctx context.Context, ref entity.Ref, mediaFileID, relationType string) (*mediaapi.Item, error)
	searchFn         func(ctx context.Context, params mediaapi.SearchParams) ([]mediaapi.File, error)
	updatePreviewsFn func(ctx context.Context, ref entity.Ref, mediaIDs []string) (mediaapi.BulkResponse, error)
	refreshLinksFn   func(ctx context.Context, ref entity.Ref, items []mediaapi.RefreshLinkItem) (mediaapi.BulkResponse, error)
}

var errBoom = errors.New("boom")

func (f *fakeAPI) called(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeAPI) List(ctx context.Context, ref entity.Ref) ([]mediaapi.Item, error) {
	f.called("list")
	if f.listFn != nil {
		return f.listFn(ctx, ref)
	}
	return []mediaapi.Item{}, nil
}

func (f *fakeAPI) Upload(ctx context.Context, ref entity.Ref, fileName string, body io.Reader, description string) (*mediaapi.Item, error) {
	f.called("upload")
	if f.uploadFn != nil {
		return f.uploadFn(ctx, ref, fileName, body, description)
	}
	return &mediaapi.Item{File: mediaapi.File{ID: fileName}}, nil
}

func (f *fakeAPI) Delete(ctx context.Context, ref entity.Ref, mediaID string) error {
	f.called("delete")
	if f.deleteFn != nil {
		return f.deleteFn(ctx, ref, mediaID)
	}
	return nil
}

func (f *fakeAPI) UpdateMetadata(ctx context.Context, mediaID string, req mediaapi.UpdateMetadataRequest) (*mediaapi.File, error) {
	f.called("update-metadata")
	if f.updateMetadataFn != nil {
		return f.updateMetadataFn(ctx, mediaID, req)
	}
	return &mediaapi.File{ID: mediaID}, nil
}

func (f *fakeAPI) Reorder(ctx context.Context, ref entity.Ref, orderedIDs []string) error {
	f.called("reorder")
	if f.reorderFn != nil {
		return f.reorderFn(ctx, ref, orderedIDs)
	}
	return nil
}

func (f *fakeAPI) Link(ctx context.Context, ref entity.Ref, mediaFileID, relationType string) (*mediaapi.Item, error) {
	f.called("link")
	if f.linkFn != nil {
		return f.linkFn(ctx, ref, mediaFileID, relationType)
	}
	return &mediaapi.Item{File: mediaapi.File{ID: mediaFileID}, RelationType: relationType}, nil
}

func (f *fakeAPI) Search(ctx context.Context, params mediaapi.SearchParams) ([]mediaapi.File, error) {
	f.called("search")
	if f.searchFn != nil {
		return f.searchFn(ctx, params)
	}
	return nil, nil
}

func (f *fakeAPI) UpdatePreviews(ctx context.Context, ref entity.Ref, mediaIDs []string) (mediaapi.BulkResponse, error) {
	f.called("update-previews")
	if f.updatePreviewsFn != nil {
		return f.updatePreviewsFn(ctx, ref, mediaIDs)
	}
	results := make([]mediaapi.ItemResult, len(mediaIDs))
	for i, id := range mediaIDs {
		results[i] = mediaapi.ItemResult{ID: id, Success: true}
	}
	return mediaapi.NewBulkResponse(results), nil
}

func (f *fakeAPI) RefreshLinks(ctx context.Context, ref entity.Ref, items []mediaapi.RefreshLinkItem) (mediaapi.BulkResponse, error) {
	f.called("refresh-links")
	if f.refreshLinksFn != nil {
		return f.refreshLinksFn(ctx, ref, items)
	}
	results := make([]mediaapi.ItemResult, len(items))
	for i, it := range items {
		results[i] = mediaapi.ItemResult{ID: it.ID, Success: true}
	}
	return mediaapi.NewBulkResponse(results), nil
}
