package mediastore

import (
	"net/url"
	"strings"
	"time"

	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

// Default staleness thresholds. Previews go stale sooner than links.
const (
	DefaultLinkStaleAfter      = 12 * time.Hour
	DefaultThumbnailStaleAfter = 3 * time.Hour
)

// signedParams are query parameters that mark a URL as a short-lived signed link.
var signedParams = []string{
	"x-amz-expires",
	"x-amz-signature",
	"x-amz-credential",
	"expires",
	"signature",
}

// errorMarkers appear in URLs the provider hands out in place of a real link.
var errorMarkers = []string{
	"accessdenied",
	"expiredtoken",
	"requestexpired",
	"nosuchkey",
}

// Staleness holds the two thresholds. The zero value uses the defaults.
type Staleness struct {
	LinkAfter      time.Duration
	ThumbnailAfter time.Duration
}

func (s Staleness) linkAfter() time.Duration {
	if s.LinkAfter <= 0 {
		return DefaultLinkStaleAfter
	}
	return s.LinkAfter
}

func (s Staleness) thumbnailAfter() time.Duration {
	if s.ThumbnailAfter <= 0 {
		return DefaultThumbnailStaleAfter
	}
	return s.ThumbnailAfter
}

// LinkStale reports whether the item's file_url needs refreshing at now.
// A signed link with no freshness timestamp is always stale; one with a
// timestamp is stale once LinkAfter has passed since the attachment's
// updated_at. Unsigned links never expire.
func (s Staleness) LinkStale(item mediaapi.Item, now time.Time) bool {
	if item.FileURL == "" {
		return true
	}
	lower := strings.ToLower(item.FileURL)
	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	if !isSignedURL(item.FileURL) {
		return false
	}
	if item.UpdatedAt.IsZero() {
		return true
	}
	return now.Sub(item.UpdatedAt) > s.linkAfter()
}

// ThumbnailStale reports whether the file's preview needs regenerating at
// now. Images are their own preview and never go stale.
func (s Staleness) ThumbnailStale(file mediaapi.File, now time.Time) bool {
	if file.FileType == mediaapi.FileTypeImage {
		return false
	}
	if file.ThumbnailURL == "" || file.ThumbnailUpdatedAt == nil {
		return true
	}
	return now.Sub(*file.ThumbnailUpdatedAt) > s.thumbnailAfter()
}

// IsLinkStale applies the default link threshold.
func IsLinkStale(item mediaapi.Item, now time.Time) bool {
	return Staleness{}.LinkStale(item, now)
}

// IsThumbnailStale applies the default thumbnail threshold.
func IsThumbnailStale(file mediaapi.File, now time.Time) bool {
	return Staleness{}.ThumbnailStale(file, now)
}

func isSignedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for key := range u.Query() {
		k := strings.ToLower(key)
		for _, p := range signedParams {
			if k == p {
				return true
			}
		}
	}
	return false
}
