package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"snipr-audio/internal/domain/ports/adapter"
)

var _ adapter.Bucket = (*GCSBucket)(nil)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSBucket stores objects in Google Cloud Storage. Objects are written
// world-readable and addressed by their plain public URL, never a signed one.
type GCSBucket struct {
	client     *gcs.Client
	bucket     string
	publicBase string
	publicACL  bool
}

type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	// PublicBaseURL replaces https://storage.googleapis.com/{bucket}, e.g. a CDN.
	PublicBaseURL string
	// PublicACL sets the publicRead ACL on upload. Leave off for buckets with
	// uniform bucket-level access.
	PublicACL bool
}

func NewGCSBucket(ctx context.Context, cfg GCSConfig) (*GCSBucket, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket name empty")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = gcsPublicHost + "/" + cfg.Bucket
	}
	return &GCSBucket{client: client, bucket: cfg.Bucket, publicBase: base, publicACL: cfg.PublicACL}, nil
}

func (b *GCSBucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"
	if b.publicACL {
		w.PredefinedACL = "publicRead"
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (b *GCSBucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.Bucket(b.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *GCSBucket) PublicURL(_ context.Context, key string) (string, error) {
	return publicURL(b.publicBase, key)
}

func (b *GCSBucket) Close() error { return b.client.Close() }

func publicURL(base, key string) (string, error) {
	if key == "" {
		return "", errors.New("empty object key")
	}
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return base + "/" + strings.Join(parts, "/"), nil
}
