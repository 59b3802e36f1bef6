package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"
)

// Store hands out the current catalog snapshot. Readers never block on a
// reload; a failed reload keeps the previous snapshot.
type Store struct {
	path    string
	current atomic.Pointer[Catalog]
	logger  *zap.Logger
}

// Open loads path into a new store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, logger: logging.OrNop(logger).Named("catalog")}
	s.current.Store(c)
	s.logger.Info("Loaded", zap.String("path", path), zap.Int("entries", c.Len()))
	return s, nil
}

// NewStatic wraps an already built catalog. It cannot be reloaded.
func NewStatic(c *Catalog) *Store {
	s := &Store{logger: zap.NewNop()}
	s.current.Store(c)
	return s
}

// Current returns the active snapshot.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Resolve looks name up in the current snapshot.
func (s *Store) Resolve(name string) (model.CatalogEntry, bool) {
	return s.Current().Resolve(name)
}

// Canonical returns the official name for name in the current snapshot.
func (s *Store) Canonical(name string) string {
	return s.Current().Canonical(name)
}

// Random picks an entry from the current snapshot.
func (s *Store) Random(rng *rand.Rand) model.CatalogEntry {
	return s.Current().Random(rng)
}

// Entries returns the entries of the current snapshot.
func (s *Store) Entries() []model.CatalogEntry {
	return s.Current().Entries()
}

// Reload re-reads the source and swaps the snapshot on success.
func (s *Store) Reload() error {
	if s.path == "" {
		return fmt.Errorf("catalog: store has no source path")
	}
	c, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(c)
	s.logger.Info("Reloaded", zap.Int("entries", c.Len()))
	return nil
}

// Watch reloads the store whenever its source changes, until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("catalog: store has no source path")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	target, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	watchDir := false
	if isDir(target) {
		dir = target
		watchDir = true
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	s.logger.Info("Watching", zap.String("path", target))

	// coalesce bursts of events from a single save
	const settle = 100 * time.Millisecond
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !watchDir && filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settle)
			} else {
				timer.Reset(settle)
			}
			timerCh = timer.C
		case <-timerCh:
			timerCh = nil
			if err := s.Reload(); err != nil {
				s.logger.Warn("Reload failed, keeping previous catalog", zap.Error(err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}
