// Package drive is the client side of the third-party cloud drive that holds
// media bytes. The rest of the system only relies on its observable
// contract: an upload yields a stable public reference, read links are
// presigned and expire on the provider's schedule, and previews can be
// (re)generated on request.
package drive

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when the referenced object does not exist.
var ErrObjectNotFound = errors.New("drive object not found")

// Object is an open handle to stored bytes. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Provider is the contract the media service needs from the drive.
type Provider interface {
	// Put stores r under key. size may be -1 when unknown.
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error

	// Get opens the object stored under key.
	Get(ctx context.Context, key string) (*Object, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Remove deletes the object. Removing a missing object is not an error.
	Remove(ctx context.Context, key string) error

	// SignedURL issues a short-lived read link for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// PublicURL returns the stable, unsigned reference for key. It is never
	// handed to browsers directly; it feeds the proxy and link refreshes.
	PublicURL(key string) string

	// KeyFromURL resolves a public or signed provider URL back to its key.
	// ok is false for URLs that do not point into this drive.
	KeyFromURL(raw string) (key string, ok bool)
}

// ThumbnailKey is the object key holding the preview of key.
func ThumbnailKey(key string) string {
	return key + ".thumb.jpg"
}
