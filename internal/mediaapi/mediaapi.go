// Package mediaapi holds the wire contract of the /api/media boundary: the
// record shapes and request/response bodies shared by the HTTP server
// (internal/plugins/media) and its client (internal/mediaclient).
//
// Records use snake_case keys; request bodies use camelCase keys.
package mediaapi

import (
	"strings"
	"time"
)

// FileType is the coarse media category of a file.
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
	FileTypeDocument FileType = "document"
)

// Valid reports whether t is one of the four known categories.
func (t FileType) Valid() bool {
	switch t {
	case FileTypeImage, FileTypeVideo, FileTypeAudio, FileTypeDocument:
		return true
	}
	return false
}

// ClassifyMIME maps a MIME type onto a FileType. Anything that is not
// image, video, or audio is a document.
func ClassifyMIME(mimeType string) FileType {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return FileTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return FileTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return FileTypeAudio
	default:
		return FileTypeDocument
	}
}

// RelationPrimary is the default attachment relation. Other values (e.g.
// "reference") are reserved.
const RelationPrimary = "primary"

// File is a global catalog entry. It belongs to no single entity.
type File struct {
	ID                 string     `json:"id"`
	FileName           string     `json:"file_name"`
	FileType           FileType   `json:"file_type"`
	MimeType           string     `json:"mime_type"`
	FileSize           int64      `json:"file_size"`
	FileURL            string     `json:"file_url,omitempty"`
	PublicURL          string     `json:"public_url,omitempty"`
	ThumbnailURL       string     `json:"thumbnail_url,omitempty"`
	ThumbnailUpdatedAt *time.Time `json:"thumbnail_updated_at,omitempty"`
	DurationSeconds    *float64   `json:"duration_seconds,omitempty"`
	Width              *int       `json:"width,omitempty"`
	Height             *int       `json:"height,omitempty"`
	Description        string     `json:"description"`

	// ProxyURL is an optional pre-built same-origin proxy link. When set,
	// renderers use it verbatim.
	ProxyURL string `json:"proxy_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is a File denormalized with one of its attachments. UpdatedAt is the
// attachment's link clock: when its file_url was last issued. Metadata and
// preview edits do not move it.
type Item struct {
	File

	AttachmentID int64  `json:"attachment_id"`
	EntityType   string `json:"entity_type"`
	EntityID     string `json:"entity_id"`
	DisplayOrder int    `json:"display_order"`
	RelationType string `json:"relation_type"`
}

// Multipart field names of POST /api/media/upload.
const (
	FieldFile        = "file"
	FieldEntityType  = "entityType"
	FieldEntityID    = "entityId"
	FieldDescription = "description"
)

// EntityScope names the entity an operation applies to.
type EntityScope struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

// DeleteRequest is the body of DELETE /api/media/{mediaId}.
type DeleteRequest = EntityScope

// UpdateMetadataRequest is the body of PUT /api/media/{mediaId}/update-metadata.
// Nil fields are left unchanged.
type UpdateMetadataRequest struct {
	Description     *string  `json:"description,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Width           *int     `json:"width,omitempty"`
	Height          *int     `json:"height,omitempty"`
}

// Empty reports whether no field was supplied.
func (r UpdateMetadataRequest) Empty() bool {
	return r.Description == nil && r.DurationSeconds == nil && r.Width == nil && r.Height == nil
}

// Fields lists the wire names of the supplied fields.
func (r UpdateMetadataRequest) Fields() []string {
	fields := []string{}
	if r.Description != nil {
		fields = append(fields, "description")
	}
	if r.DurationSeconds != nil {
		fields = append(fields, "duration_seconds")
	}
	if r.Width != nil {
		fields = append(fields, "width")
	}
	if r.Height != nil {
		fields = append(fields, "height")
	}
	return fields
}

// ReorderRequest is the body of POST /api/media/reorder. OrderedIDs is the
// complete new sequence of media file ids for the entity.
type ReorderRequest struct {
	EntityType string   `json:"entityType"`
	EntityID   string   `json:"entityId"`
	OrderedIDs []string `json:"orderedIds"`
}

// LinkRequest is the body of POST /api/media/link.
type LinkRequest struct {
	MediaFileID  string `json:"mediaFileId"`
	EntityType   string `json:"entityType"`
	EntityID     string `json:"entityId"`
	RelationType string `json:"relationType"`
}

// SearchParams are the query parameters of GET /api/media/files.
type SearchParams struct {
	Search            string
	FileType          FileType
	ExcludeEntityType string
	ExcludeEntityID   string
	Limit             int
}

// Search limits.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// ClampLimit applies the default and maximum to a requested limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return min(limit, MaxSearchLimit)
}

// UpdatePreviewsRequest is the body of POST /api/update-media-previews.
type UpdatePreviewsRequest struct {
	MediaIDs   []string `json:"mediaIds"`
	EntityType string   `json:"entityType"`
	EntityID   string   `json:"entityId"`
}

// RefreshLinkItem describes one file whose links should be re-issued.
type RefreshLinkItem struct {
	ID                  string   `json:"id"`
	FileName            string   `json:"fileName"`
	FileType            FileType `json:"fileType"`
	PublicURL           string   `json:"publicUrl"`
	CurrentFileURL      string   `json:"currentFileUrl,omitempty"`
	CurrentThumbnailURL string   `json:"currentThumbnailUrl,omitempty"`
}

// RefreshLinksRequest is the body of POST /api/refresh-links.
type RefreshLinksRequest struct {
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	MediaItems []RefreshLinkItem `json:"mediaItems"`
}

// ItemResult is the per-item outcome of a bulk endpoint.
type ItemResult struct {
	ID                 string     `json:"id"`
	Success            bool       `json:"success"`
	Error              string     `json:"error,omitempty"`
	FileURL            string     `json:"file_url,omitempty"`
	ThumbnailURL       string     `json:"thumbnail_url,omitempty"`
	ThumbnailUpdatedAt *time.Time `json:"thumbnail_updated_at,omitempty"`
}

// BulkResponse is returned by the two bulk endpoints.
type BulkResponse struct {
	Success   bool         `json:"success"`
	Error     string       `json:"error,omitempty"`
	Results   []ItemResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// NewBulkResponse counts outcomes. Success reports that the batch was
// processed; per-item failures are carried in Results and Failed.
func NewBulkResponse(results []ItemResult) BulkResponse {
	resp := BulkResponse{Results: results}
	if resp.Results == nil {
		resp.Results = []ItemResult{}
	}
	for _, r := range resp.Results {
		if r.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	resp.Success = true
	return resp
}

// Envelope wraps every non-bulk response.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// OK wraps data in a successful envelope.
func OK[T any](data T) Envelope[T] {
	return Envelope[T]{Success: true, Data: data}
}

// Ack is the data of acknowledgment-only responses.
type Ack struct {
	Status string `json:"status"`
}
