package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteInventoryRepository stores one row per user in a local SQLite file.
type SQLiteInventoryRepository struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	logger *zap.Logger
}

// NewSQLiteInventoryRepository opens (and creates) the database at dbPath,
// e.g. "./data/inventory.db". ":memory:" is accepted for tests.
func NewSQLiteInventoryRepository(dbPath string, logger *zap.Logger) (*SQLiteInventoryRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger = logging.OrNop(logger).Named("inventory.sqlite")
	logger.Info("Initialized", zap.String("path", dbPath))
	return &SQLiteInventoryRepository{db: db, path: dbPath, logger: logger}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS ballbot_inventory (
		user_id TEXT PRIMARY KEY,
		items_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_inventory_updated_at ON ballbot_inventory(updated_at);
	`
	_, err := db.Exec(query)
	return err
}

// Load returns every user's items. An empty store yields an empty record.
func (r *SQLiteInventoryRepository) Load(ctx context.Context) (model.Inventories, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `SELECT user_id, items_json FROM ballbot_inventory`)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	inv := model.Inventories{}
	for rows.Next() {
		var userID, itemsJSON string
		if err := rows.Scan(&userID, &itemsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		if err := decodeRow(inv, userID, []byte(itemsJSON)); err != nil {
			return nil, err
		}
	}
	return inv, rows.Err()
}

// Save upserts every user row and removes rows of users no longer present,
// all in one transaction.
func (r *SQLiteInventoryRepository) Save(ctx context.Context, inv model.Inventories) error {
	items, err := encodeRows(inv, time.Now().UTC())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ballbot_inventory (user_id, items_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			items_json = excluded.items_json,
			updated_at = excluded.updated_at
		WHERE items_json <> excluded.items_json`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range items {
		if _, err := stmt.ExecContext(ctx, row.UserID, string(row.ItemsJSON), row.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert inventory of %s: %w", row.UserID, err)
		}
	}

	stored, err := queryUserIDs(ctx, tx, `SELECT user_id FROM ballbot_inventory`)
	if err != nil {
		return err
	}
	for _, user := range staleUsers(stored, inv) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ballbot_inventory WHERE user_id = ?`, user); err != nil {
			return fmt.Errorf("failed to delete inventory of %s: %w", user, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetStats reports the backend and how many users and items it holds.
func (r *SQLiteInventoryRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := map[string]interface{}{"backend": "sqlite"}

	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ballbot_inventory").Scan(&count); err != nil {
		return nil, err
	}
	stats["users"] = count

	var lastWrite sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM ballbot_inventory").Scan(&lastWrite); err == nil && lastWrite.Valid {
		stats["last_write"] = lastWrite.String
	}

	// approximate file size from page count
	var pageCount, pageSize int64
	_ = r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	_ = r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Close releases the underlying connection.
func (r *SQLiteInventoryRepository) Close() error {
	return r.db.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryUserIDs(ctx context.Context, q queryer, query string) ([]string, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ InventoryRepository = (*SQLiteInventoryRepository)(nil)
