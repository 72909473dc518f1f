package tensorcache

import (
	"context"

	"github.com/example/face-verify/internal/embedding"
)

// Store persists vectors under entry names. Get fails with domain.ErrNotFound
// for unknown names and domain.ErrCorruptArtifact for unreadable content.
type Store interface {
	Put(ctx context.Context, name string, v embedding.Vector) error
	Get(ctx context.Context, name string) (embedding.Vector, error)
}

// Blobs is a flat key/value byte store. Put replaces the whole object.
type Blobs interface {
	PutBlob(ctx context.Context, key string, data []byte) error
	GetBlob(ctx context.Context, key string) ([]byte, error)
}

// BlobStore stores each vector as one serialized artifact named
// "<name>.emb" in a Blobs backend.
type BlobStore struct {
	blobs Blobs
}

func NewBlobStore(blobs Blobs) *BlobStore {
	return &BlobStore{blobs: blobs}
}

func (s *BlobStore) Put(ctx context.Context, name string, v embedding.Vector) error {
	return s.blobs.PutBlob(ctx, ArtifactKey(name), embedding.Encode(v))
}

func (s *BlobStore) Get(ctx context.Context, name string) (embedding.Vector, error) {
	data, err := s.blobs.GetBlob(ctx, ArtifactKey(name))
	if err != nil {
		return embedding.Vector{}, err
	}
	return embedding.Decode(data, 0)
}

// ArtifactKey is the object key of an entry.
func ArtifactKey(name string) string {
	return name + embedding.ArtifactExt
}
