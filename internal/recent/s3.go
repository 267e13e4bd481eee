package recent

import (
	"context"
	"errors"
	"path"

	"github.com/streamie/streamie/internal/storage"
)

// ObjectStorage is the part of storage.Storage the recency list needs.
type ObjectStorage interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

// S3Store keeps each blob as one object under prefix.
type S3Store struct {
	objects ObjectStorage
	prefix  string
}

func NewS3Store(objects ObjectStorage, prefix string) *S3Store {
	return &S3Store{objects: objects, prefix: prefix}
}

func (s *S3Store) objectKey(key string) string {
	return path.Join(s.prefix, key+".json")
}

func (s *S3Store) Load(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.objects.GetObject(ctx, s.objectKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return blob, err
}

func (s *S3Store) Save(ctx context.Context, key string, blob []byte) error {
	return s.objects.PutObject(ctx, s.objectKey(key), blob, "application/json")
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	err := s.objects.DeleteObject(ctx, s.objectKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
