package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLInventoryRepository stores one JSON row per user in MySQL.
type MySQLInventoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLInventoryRepository connects with a go-sql-driver DSN such as
// "user:pass@tcp(host:3306)/ballbot?parseTime=true".
func NewMySQLInventoryRepository(ctx context.Context, dsn string, logger *zap.Logger) (*MySQLInventoryRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS ballbot_inventory (
		user_id VARCHAR(64) NOT NULL PRIMARY KEY,
		items_json JSON NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_ballbot_inventory_updated_at (updated_at)
	)`
	if _, err := db.ExecContext(pingCtx, query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger = logging.OrNop(logger).Named("inventory.mysql")
	logger.Info("Initialized")
	return &MySQLInventoryRepository{db: db, logger: logger}, nil
}

// Load returns every user's items. An empty store yields an empty record.
func (r *MySQLInventoryRepository) Load(ctx context.Context) (model.Inventories, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id, items_json FROM ballbot_inventory")
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	inv := model.Inventories{}
	for rows.Next() {
		var userID string
		var itemsJSON []byte
		if err := rows.Scan(&userID, &itemsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		if err := decodeRow(inv, userID, itemsJSON); err != nil {
			return nil, err
		}
	}
	return inv, rows.Err()
}

// Save replaces the stored record with inv.
func (r *MySQLInventoryRepository) Save(ctx context.Context, inv model.Inventories) error {
	items, err := encodeRows(inv, time.Now().UTC())
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ballbot_inventory (user_id, items_json, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			items_json = VALUES(items_json),
			updated_at = VALUES(updated_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range items {
		if _, err := stmt.ExecContext(ctx, row.UserID, string(row.ItemsJSON), row.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert inventory of %s: %w", row.UserID, err)
		}
	}

	stored, err := queryUserIDs(ctx, tx, "SELECT user_id FROM ballbot_inventory")
	if err != nil {
		return err
	}
	for _, user := range staleUsers(stored, inv) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM ballbot_inventory WHERE user_id = ?", user); err != nil {
			return fmt.Errorf("failed to delete inventory of %s: %w", user, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetStats reports the backend and how many users and items it holds.
func (r *MySQLInventoryRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"backend": "mysql"}

	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ballbot_inventory").Scan(&count); err != nil {
		return nil, err
	}
	stats["users"] = count

	var lastWrite sql.NullTime
	if err := r.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM ballbot_inventory").Scan(&lastWrite); err == nil && lastWrite.Valid {
		stats["last_write"] = lastWrite.Time
	}
	return stats, nil
}

// Close releases the underlying connection.
func (r *MySQLInventoryRepository) Close() error {
	return r.db.Close()
}

var _ InventoryRepository = (*MySQLInventoryRepository)(nil)
