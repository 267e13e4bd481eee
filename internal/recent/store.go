package recent

import (
	"context"
	"errors"
	"sync"
)

// BlobKey is the fixed name the list is persisted under.
const BlobKey = "recentlyWatched"

// ErrNotFound reports that no blob exists for a key.
var ErrNotFound = errors.New("recent: blob not found")

// Store persists whole serialized lists. Implementations never see partial lists.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(blob))
	copy(stored, blob)
	s.blobs[key] = stored
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}
