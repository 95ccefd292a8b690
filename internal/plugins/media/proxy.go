package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/atlas/internal/apperror"
	"github.com/keyxmakerx/atlas/internal/drive"
)

// MaxCachedObject is the largest object the proxy keeps in Redis.
const MaxCachedObject = 2 << 20

// Proxy serves drive objects on the API's own origin. It only accepts URLs
// that resolve to a key in the configured drive, so it can never be pointed
// at an arbitrary host. Objects are read with the server's own credentials,
// which means an expired signed link still proxies.
type Proxy struct {
	drive drive.Provider
	cache *redis.Client
	ttl   time.Duration
}

// NewProxy creates the image proxy. cache may be nil to disable caching.
func NewProxy(provider drive.Provider, cache *redis.Client, ttl time.Duration) *Proxy {
	return &Proxy{drive: provider, cache: cache, ttl: ttl}
}

// cachedObject is one cached response.
type cachedObject struct {
	contentType string
	body        []byte
}

// Serve streams the object behind ?url= (GET /api/proxy-image).
func (p *Proxy) Serve(c echo.Context) error {
	raw := c.QueryParam("url")
	if raw == "" {
		return apperror.NewBadRequest("url is required")
	}
	key, ok := p.drive.KeyFromURL(raw)
	if !ok {
		return apperror.NewBadRequest("url does not point into the media drive")
	}

	ctx := c.Request().Context()
	cacheKey := "proxy:" + key + ":" + c.QueryParam("v")

	if cached, ok := p.lookup(ctx, cacheKey); ok {
		setProxyHeaders(c, "HIT")
		return c.Blob(http.StatusOK, cached.contentType, cached.body)
	}

	obj, err := p.drive.Get(ctx, key)
	if errors.Is(err, drive.ErrObjectNotFound) {
		return apperror.NewNotFound("media object not found")
	}
	if err != nil {
		return apperror.NewUpstream("reading from drive failed", err)
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}

	if p.cache != nil && obj.Size >= 0 && obj.Size <= MaxCachedObject {
		body, err := io.ReadAll(io.LimitReader(obj.Body, MaxCachedObject+1))
		if err != nil {
			return apperror.NewUpstream("reading from drive failed", err)
		}
		p.store(ctx, cacheKey, cachedObject{contentType: contentType, body: body})
		setProxyHeaders(c, "MISS")
		return c.Blob(http.StatusOK, contentType, body)
	}

	setProxyHeaders(c, "BYPASS")
	if obj.Size >= 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(obj.Size, 10))
	}
	return c.Stream(http.StatusOK, contentType, obj.Body)
}

func (p *Proxy) lookup(ctx context.Context, cacheKey string) (cachedObject, bool) {
	if p.cache == nil {
		return cachedObject{}, false
	}
	fields, err := p.cache.HGetAll(ctx, cacheKey).Result()
	if err != nil {
		slog.Warn("proxy cache read failed", slog.Any("error", err))
		return cachedObject{}, false
	}
	body, ok := fields["body"]
	if !ok {
		return cachedObject{}, false
	}
	return cachedObject{contentType: fields["type"], body: []byte(body)}, true
}

func (p *Proxy) store(ctx context.Context, cacheKey string, obj cachedObject) {
	_, err := p.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, cacheKey, "type", obj.contentType, "body", obj.body)
		pipe.Expire(ctx, cacheKey, p.ttl)
		return nil
	})
	if err != nil {
		slog.Warn("proxy cache write failed", slog.Any("error", err))
	}
}

// setProxyHeaders marks proxied bytes as untrusted content: never sniffed,
// never able to script the API origin.
func setProxyHeaders(c echo.Context, cacheStatus string) {
	h := c.Response().Header()
	h.Set("Cache-Control", "private, max-age=300")
	h.Set("Content-Security-Policy", "sandbox; default-src 'none'")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Proxy-Cache", cacheStatus)
}
