package poller

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"pronto-ballbot/internal/cache"
	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"
)

// CursorStore persists the last processed message id.
type CursorStore interface {
	LoadCursor(ctx context.Context) (model.ID, error)
	SaveCursor(ctx context.Context, id model.ID) error
}

// Cursor tracks the most recently processed message. IDs are compared by
// equality only; the service always returns the newest message first.
type Cursor struct {
	mu     sync.RWMutex
	last   model.ID
	store  CursorStore
	logger *zap.Logger
}

// NewCursor returns an empty cursor. store may be nil, in which case the
// cursor lives only in memory.
func NewCursor(store CursorStore, logger *zap.Logger) *Cursor {
	return &Cursor{store: store, logger: logging.OrNop(logger).Named("cursor")}
}

// Restore loads the persisted position, if any.
func (c *Cursor) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	id, err := c.store.LoadCursor(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.last = id
	c.mu.Unlock()
	if !id.IsZero() {
		c.logger.Info("Restored", zap.String("message_id", id.String()))
	}
	return nil
}

// Last returns the last processed message id.
func (c *Cursor) Last() model.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// IsNew reports whether id differs from the last processed id.
func (c *Cursor) IsNew(id model.ID) bool {
	if id.IsZero() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return id != c.last
}

// Observe records id and reports whether it advanced the cursor.
// Persistence failures are logged; the in-memory position still advances.
func (c *Cursor) Observe(ctx context.Context, id model.ID) bool {
	if id.IsZero() {
		return false
	}
	c.mu.Lock()
	if id == c.last {
		c.mu.Unlock()
		return false
	}
	c.last = id
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveCursor(ctx, id); err != nil {
			c.logger.Warn("Failed to persist cursor", zap.String("message_id", id.String()), zap.Error(err))
		}
	}
	return true
}

// CacheCursorStore keeps the cursor in a cache.Cache under a fixed key.
type CacheCursorStore struct {
	cache cache.Cache
	key   string
}

// NewCacheCursorStore creates a store writing to key.
func NewCacheCursorStore(c cache.Cache, key string) *CacheCursorStore {
	if key == "" {
		key = "ballbot:cursor"
	}
	return &CacheCursorStore{cache: c, key: key}
}

// LoadCursor returns the stored id, or an empty id when none was saved.
func (s *CacheCursorStore) LoadCursor(ctx context.Context) (model.ID, error) {
	raw, err := s.cache.Get(ctx, s.key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return model.ID(raw), nil
}

// SaveCursor stores id without expiry.
func (s *CacheCursorStore) SaveCursor(ctx context.Context, id model.ID) error {
	return s.cache.Set(ctx, s.key, []byte(id), 0)
}

// Reset removes the stored cursor and reports whether one was present. The
// next start processes the newest message again.
func (s *CacheCursorStore) Reset(ctx context.Context) (bool, error) {
	ok, err := s.cache.Exists(ctx, s.key)
	if err != nil || !ok {
		return false, err
	}
	if err := s.cache.Delete(ctx, s.key); err != nil {
		return false, err
	}
	return true, nil
}
