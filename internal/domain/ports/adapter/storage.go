package adapter

import "context"

// Bucket is the object storage primitive behind the artifact store.
type Bucket interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Exists reports whether key is stored. A missing object is not an error.
	Exists(ctx context.Context, key string) (bool, error)
	// PublicURL resolves the stable, unsigned URL of a stored object.
	PublicURL(ctx context.Context, key string) (string, error)
}

// ArtifactStore persists an audio artifact and returns its public URL.
type ArtifactStore interface {
	Put(ctx context.Context, key string, audio []byte) (string, error)
}
