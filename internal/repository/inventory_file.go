package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"
)

// FileInventoryRepository keeps the record in a single JSON object file
// mapping user id to item list. Writes go to a temp file that is renamed over
// the target.
type FileInventoryRepository struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileInventoryRepository creates the parent directory if needed. A missing
// file reads as an empty record.
func NewFileInventoryRepository(path string, logger *zap.Logger) (*FileInventoryRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("inventory file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create inventory directory: %w", err)
	}
	logger = logging.OrNop(logger).Named("inventory.file")
	logger.Info("Initialized", zap.String("path", path))
	return &FileInventoryRepository{path: path, logger: logger}, nil
}

// Load returns every user's items. An empty store yields an empty record.
func (r *FileInventoryRepository) Load(ctx context.Context) (model.Inventories, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Inventories{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}

	inv := model.Inventories{}
	if len(raw) == 0 {
		return inv, nil
	}
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory %s: %w: %w", r.path, ErrCorrupt, err)
	}
	return inv, nil
}

// Save replaces the stored record with inv.
func (r *FileInventoryRepository) Save(ctx context.Context, inv model.Inventories) error {
	if inv == nil {
		inv = model.Inventories{}
	}
	raw, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode inventory: %w", err)
	}
	raw = append(raw, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	return writeFileAtomic(r.path, raw, 0o644)
}

// GetStats reports the backend and how many users and items it holds.
func (r *FileInventoryRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	inv, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	stats := map[string]interface{}{
		"backend":     "file",
		"path":        r.path,
		"users":       len(inv),
		"total_items": inv.Total(),
	}
	if st, err := os.Stat(r.path); err == nil {
		stats["file_size_bytes"] = st.Size()
		stats["last_write"] = st.ModTime()
	}
	return stats, nil
}

// Close is a no-op; the file is reopened on every call.
func (r *FileInventoryRepository) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace inventory: %w", err)
	}
	return nil
}

var _ InventoryRepository = (*FileInventoryRepository)(nil)
