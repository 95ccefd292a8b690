package mediastore

import (
	"net/url"
	"strconv"
	"time"

	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

// ProxyPath is the same-origin endpoint that streams provider content.
const ProxyPath = "/api/proxy-image"

// GetProxyURL returns the same-origin URL to render file with, or "" when
// the file has nothing to show and the caller should draw a placeholder.
//
// A pre-built proxy_url wins. Images proxy their direct file_url; other
// types prefer their thumbnail; public_url is the last resort. Derived URLs
// carry a v parameter from thumbnail_updated_at (now when absent) so a
// refreshed preview is never masked by a browser cache.
func GetProxyURL(file mediaapi.File, now time.Time) string {
	if file.ProxyURL != "" {
		return file.ProxyURL
	}

	var src string
	switch {
	case file.FileType == mediaapi.FileTypeImage && file.FileURL != "":
		src = file.FileURL
	case file.ThumbnailURL != "":
		src = file.ThumbnailURL
	case file.PublicURL != "":
		src = file.PublicURL
	default:
		return ""
	}

	version := now
	if file.ThumbnailUpdatedAt != nil {
		version = *file.ThumbnailUpdatedAt
	}
	return ProxyPath + "?url=" + url.QueryEscape(src) + "&v=" + strconv.FormatInt(version.UnixMilli(), 10)
}
