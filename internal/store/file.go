package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/username/simcal/internal/calendar"
)

// FileStore keeps one snapshot file per key in a directory.
type FileStore struct {
	dir    string
	format Format
	logger *zap.Logger
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string, format Format, logger *zap.Logger) *FileStore {
	if format == "" {
		format = FormatJSON
	}
	return &FileStore{
		dir:    dir,
		format: format,
		logger: logger,
	}
}

// Path returns the file backing key.
func (fs *FileStore) Path(key string) string {
	return filepath.Join(fs.dir, key+fs.format.Extension())
}

// Load reads the snapshot stored under key.
func (fs *FileStore) Load(_ context.Context, key string) (*calendar.Snapshot, error) {
	path := fs.Path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	snap, err := decode(fs.format, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file %s: %w", path, err)
	}

	fs.logger.Info("Snapshot loaded",
		zap.String("path", path),
		zap.Int("events", len(snap.Events)))

	return snap, nil
}

// Save writes the snapshot through a temp file and renames it over the
// target, so readers never see a partial file.
func (fs *FileStore) Save(_ context.Context, key string, snap *calendar.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is nil")
	}
	data, err := encode(fs.format, snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(fs.dir, ".simcal-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	path := fs.Path(key)
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	fs.logger.Info("Snapshot saved",
		zap.String("path", path),
		zap.Int("events", len(snap.Events)))

	return nil
}
