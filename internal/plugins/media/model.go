// Package media is the server side of the /api/media boundary. Files live on
// the cloud drive; MariaDB holds the global file catalog and the per-entity
// attachments that order them. A file outlives every attachment to it.
package media

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

// FileRecord is a catalog row: the wire record plus the drive keys that are
// never sent to clients.
type FileRecord struct {
	mediaapi.File

	ObjectKey    string
	ThumbnailKey string
}

// UploadInput holds the validated input for creating a media file.
type UploadInput struct {
	Ref         entity.Ref
	FileName    string
	MimeType    string
	FileSize    int64
	Description string
	Body        io.Reader
}

// objectKey builds the drive key for a new file: date-bucketed, UUID-named,
// keeping the original extension so provider-side type sniffing still works.
func objectKey(id, fileName string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\?#&%`) {
		ext = ""
	}
	return "media/" + now.UTC().Format("2006/01") + "/" + id + ext
}

