package store

import (
	"context"
	"time"

	"studydeck/pkg/logger"
)

// Persister stores tree snapshots. Load returns nil when nothing was saved yet.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, snapshot []byte) error
}

// Flush saves the tree when it has unsaved changes.
func (t *Tree) Flush(ctx context.Context, p Persister) error {
	if !t.Dirty() {
		return nil
	}
	data, version, err := t.Snapshot()
	if err != nil {
		return err
	}
	if err := p.Save(ctx, data); err != nil {
		return err
	}
	// Only the version we serialized counts as saved; later commits stay dirty.
	t.markSaved(version)
	return nil
}

// SaveWorker flushes the tree every interval until ctx is done, then makes
// one last attempt with a fresh context.
func (t *Tree) SaveWorker(ctx context.Context, p Persister, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.Flush(ctx, p); err != nil {
				// Leave the dirty flag set, will retry on the next tick.
				logger.Sugar.Errorf("Failed to save tree snapshot: %v", err)
				continue
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := t.Flush(final, p); err != nil {
				logger.Sugar.Errorf("Failed to save tree snapshot on shutdown: %v", err)
			} else {
				logger.Sugar.Info("Saved tree snapshot on shutdown")
			}
			cancel()
			return
		}
	}
}
