// Package mediaclient is the typed HTTP client for the /api/media boundary.
// Every method maps to one endpoint and takes a context. Failures come back
// as *TransportError (the request never produced a readable envelope) or
// *APIError (the server answered with success=false).
package mediaclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

// TransportError reports a request that failed before a parseable response
// arrived: the network was unreachable, or the server returned a non-2xx
// status without a JSON envelope.
type TransportError struct {
	Method string
	Path   string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is an application-level failure: the server answered with
// {"success": false, "error": "..."}.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client talks to one media API origin.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for the API at baseURL (e.g. "http://localhost:8080").
// A nil httpClient uses a client with a 60 second timeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing api base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("api base url %q has no host", baseURL)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawQuery = ""
	base.Fragment = ""

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{base: base, http: httpClient}, nil
}

// BaseURL returns the API origin the client was created with.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// List returns every attachment of ref in display order.
func (c *Client) List(ctx context.Context, ref entity.Ref) ([]mediaapi.Item, error) {
	var items []mediaapi.Item
	err := c.do(ctx, http.MethodGet, "/api/media/"+string(ref.Type)+"/"+url.PathEscape(ref.ID), nil, nil, &items)
	return items, err
}

// Upload sends one file as multipart/form-data and returns the created record.
func (c *Client) Upload(ctx context.Context, ref entity.Ref, fileName string, body io.Reader, description string) (*mediaapi.Item, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{mediaapi.FieldEntityType, string(ref.Type)},
		{mediaapi.FieldEntityID, ref.ID},
		{mediaapi.FieldDescription, description},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	part, err := w.CreateFormFile(mediaapi.FieldFile, fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, fmt.Errorf("reading %s: %w", fileName, err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var item mediaapi.Item
	headers := http.Header{"Content-Type": []string{w.FormDataContentType()}}
	if err := c.do(ctx, http.MethodPost, "/api/media/upload", headers, &buf, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete removes the attachment of mediaID to ref. The file itself survives.
func (c *Client) Delete(ctx context.Context, ref entity.Ref, mediaID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/media/"+url.PathEscape(mediaID), scope(ref), nil)
}

// UpdateMetadata applies a partial update and returns the updated file.
func (c *Client) UpdateMetadata(ctx context.Context, mediaID string, req mediaapi.UpdateMetadataRequest) (*mediaapi.File, error) {
	var file mediaapi.File
	if err := c.doJSON(ctx, http.MethodPut, "/api/media/"+url.PathEscape(mediaID)+"/update-metadata", req, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// Reorder persists orderedIDs as the complete display order of ref.
func (c *Client) Reorder(ctx context.Context, ref entity.Ref, orderedIDs []string) error {
	body := mediaapi.ReorderRequest{EntityType: string(ref.Type), EntityID: ref.ID, OrderedIDs: orderedIDs}
	return c.doJSON(ctx, http.MethodPost, "/api/media/reorder", body, nil)
}

// Link attaches an existing file to ref.
func (c *Client) Link(ctx context.Context, ref entity.Ref, mediaFileID, relationType string) (*mediaapi.Item, error) {
	body := mediaapi.LinkRequest{
		MediaFileID:  mediaFileID,
		EntityType:   string(ref.Type),
		EntityID:     ref.ID,
		RelationType: relationType,
	}
	var item mediaapi.Item
	if err := c.doJSON(ctx, http.MethodPost, "/api/media/link", body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Search queries the global catalog.
func (c *Client) Search(ctx context.Context, params mediaapi.SearchParams) ([]mediaapi.File, error) {
	values := url.Values{}
	if s := strings.TrimSpace(params.Search); s != "" {
		values.Set("search", s)
	}
	if params.FileType != "" {
		values.Set("file_type", string(params.FileType))
	}
	if params.ExcludeEntityType != "" {
		values.Set("exclude_entity_type", params.ExcludeEntityType)
		values.Set("exclude_entity_id", params.ExcludeEntityID)
	}
	if params.Limit > 0 {
		values.Set("limit", strconv.Itoa(params.Limit))
	}

	path := "/api/media/files"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}
	var files []mediaapi.File
	err := c.do(ctx, http.MethodGet, path, nil, nil, &files)
	return files, err
}

// UpdatePreviews asks the server to regenerate previews for mediaIDs.
func (c *Client) UpdatePreviews(ctx context.Context, ref entity.Ref, mediaIDs []string) (mediaapi.BulkResponse, error) {
	body := mediaapi.UpdatePreviewsRequest{MediaIDs: mediaIDs, EntityType: string(ref.Type), EntityID: ref.ID}
	return c.bulk(ctx, "/api/update-media-previews", body)
}

// RefreshLinks asks the server to re-issue expiring links for items.
func (c *Client) RefreshLinks(ctx context.Context, ref entity.Ref, items []mediaapi.RefreshLinkItem) (mediaapi.BulkResponse, error) {
	body := mediaapi.RefreshLinksRequest{EntityType: string(ref.Type), EntityID: ref.ID, MediaItems: items}
	return c.bulk(ctx, "/api/refresh-links", body)
}

// ProxyURL returns the absolute proxy address for a provider URL.
func (c *Client) ProxyURL(path string) string {
	return c.base.String() + path
}

func scope(ref entity.Ref) mediaapi.EntityScope {
	return mediaapi.EntityScope{EntityType: string(ref.Type), EntityID: ref.ID}
}
