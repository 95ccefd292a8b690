package mediastore

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

func proxied(t *testing.T, raw string) (src, version string) {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ProxyPath, u.Path)
	return u.Query().Get("url"), u.Query().Get("v")
}

func TestGetProxyURL_ExplicitWins(t *testing.T) {
	f := mediaapi.File{ProxyURL: "/api/proxy-image?url=x&v=1", FileType: mediaapi.FileTypeImage, FileURL: "https://drive.test/a.png"}
	assert.Equal(t, "/api/proxy-image?url=x&v=1", GetProxyURL(f, testNow))
}

func TestGetProxyURL_ImagePrefersFileURL(t *testing.T) {
	f := mediaapi.File{
		FileType:  mediaapi.FileTypeImage,
		FileURL:   "https://drive.test/a.png?X-Amz-Signature=s&b=1",
		PublicURL: "https://drive.test/a.png",
	}
	src, _ := proxied(t, GetProxyURL(f, testNow))
	assert.Equal(t, f.FileURL, src)
}

func TestGetProxyURL_FallbackOrder(t *testing.T) {
	video := mediaapi.File{
		FileType:     mediaapi.FileTypeVideo,
		FileURL:      "https://drive.test/a.mp4",
		ThumbnailURL: "https://drive.test/a.mp4.thumb.jpg",
		PublicURL:    "https://drive.test/public/a.mp4",
	}
	src, _ := proxied(t, GetProxyURL(video, testNow))
	assert.Equal(t, video.ThumbnailURL, src)

	video.ThumbnailURL = ""
	src, _ = proxied(t, GetProxyURL(video, testNow))
	assert.Equal(t, video.PublicURL, src)

	video.PublicURL = ""
	assert.Empty(t, GetProxyURL(video, testNow))
}

func TestGetProxyURL_CacheBuster(t *testing.T) {
	f := mediaapi.File{FileType: mediaapi.FileTypeDocument, ThumbnailURL: "https://drive.test/d.thumb.jpg"}
	_, v := proxied(t, GetProxyURL(f, testNow))
	assert.Equal(t, strconv.FormatInt(testNow.UnixMilli(), 10), v)

	f.ThumbnailUpdatedAt = at(90 * time.Minute)
	_, v = proxied(t, GetProxyURL(f, testNow))
	assert.Equal(t, strconv.FormatInt(f.ThumbnailUpdatedAt.UnixMilli(), 10), v)
}
