package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/keyxmakerx/atlas/internal/config"
)

// S3Provider implements Provider on any S3-compatible store through
// minio-go. Links are path-style: <endpoint>/<bucket>/<key>.
type S3Provider struct {
	client *minio.Client
	bucket string
	region string
}

// NewS3Provider builds a provider from config. It does not touch the
// network; call EnsureBucket at startup to verify connectivity.
func NewS3Provider(cfg config.DriveConfig) (*S3Provider, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating drive client: %w", err)
	}
	return &S3Provider{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// EnsureBucket creates the media bucket if it does not exist yet.
func (p *S3Provider) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("checking drive bucket %q: %w", p.bucket, err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
		return fmt.Errorf("creating drive bucket %q: %w", p.bucket, err)
	}
	slog.Info("drive bucket created", slog.String("bucket", p.bucket))
	return nil
}

// Put uploads r under key.
func (p *S3Provider) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	_, err := p.client.PutObject(ctx, p.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("putting drive object %q: %w", key, err)
	}
	return nil
}

// Get opens key for reading. The object is stat'ed first so a missing key
// maps to ErrObjectNotFound instead of failing on the first Read.
func (p *S3Provider) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := p.client.GetObject(ctx, p.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("opening drive object %q: %w", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stating drive object %q: %w", key, err)
	}
	return &Object{Body: obj, ContentType: info.ContentType, Size: info.Size}, nil
}

// Exists reports whether key is present in the bucket.
func (p *S3Provider) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, fmt.Errorf("stating drive object %q: %w", key, err)
}

// Remove deletes key. S3 treats deleting a missing key as success.
func (p *S3Provider) Remove(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := p.client.RemoveObject(ctx, p.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("removing drive object %q: %w", key, err)
	}
	return nil
}

// SignedURL presigns a GET for key. The result carries X-Amz-Expires and
// X-Amz-Signature query parameters.
func (p *S3Provider) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning drive object %q: %w", key, err)
	}
	return u.String(), nil
}

// PublicURL returns the unsigned path-style URL for key.
func (p *S3Provider) PublicURL(key string) string {
	base := *p.client.EndpointURL()
	base.Path = "/" + p.bucket + "/" + key
	base.RawQuery = ""
	return base.String()
}

// KeyFromURL extracts the object key from a URL pointing at this bucket.
func (p *S3Provider) KeyFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if !strings.EqualFold(u.Host, p.client.EndpointURL().Host) {
		return "", false
	}
	prefix := "/" + p.bucket + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(u.Path, prefix)
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

// isNoSuchKey reports whether err is the S3 missing-object response.
func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
