package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/username/simcal/internal/calendar"
)

// FallbackStore reads from the primary store and falls back to the
// secondary when the primary fails. Writes go to both.
type FallbackStore struct {
	primary  SnapshotStore
	fallback SnapshotStore
	logger   *zap.Logger
}

// NewFallbackStore creates a new FallbackStore
func NewFallbackStore(primary, fallback SnapshotStore, logger *zap.Logger) *FallbackStore {
	return &FallbackStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Load tries the primary first
func (fs *FallbackStore) Load(ctx context.Context, key string) (*calendar.Snapshot, error) {
	snap, err := fs.primary.Load(ctx, key)
	if err == nil {
		return snap, nil
	}

	fs.logger.Warn("Primary store failed, falling back",
		zap.String("key", key),
		zap.Error(err))

	return fs.fallback.Load(ctx, key)
}

// Save writes through to both stores and fails only when both fail.
func (fs *FallbackStore) Save(ctx context.Context, key string, snap *calendar.Snapshot) error {
	primaryErr := fs.primary.Save(ctx, key, snap)
	if primaryErr != nil {
		fs.logger.Warn("Primary store save failed",
			zap.String("key", key),
			zap.Error(primaryErr))
	}

	fallbackErr := fs.fallback.Save(ctx, key, snap)
	if fallbackErr != nil {
		fs.logger.Warn("Fallback store save failed",
			zap.String("key", key),
			zap.Error(fallbackErr))
	}

	if primaryErr != nil && fallbackErr != nil {
		return fmt.Errorf("failed to save snapshot: %w", errors.Join(primaryErr, fallbackErr))
	}
	return nil
}
