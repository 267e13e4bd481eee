package recent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// FileStore writes one JSON file per key. Writes go through a pending file
// that is fsynced and renamed over the old one, so readers never see a torn blob.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create recent dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
	return filepath.Join(s.dir, safe+".json")
}

func (s *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	blob, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return blob, nil
}

func (s *FileStore) Save(_ context.Context, key string, blob []byte) error {
	pending, err := renameio.NewPendingFile(s.path(key), renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			slog.Debug("recent: cleanup pending file", "key", key, "error", err)
		}
	}()

	if _, err := pending.Write(blob); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
