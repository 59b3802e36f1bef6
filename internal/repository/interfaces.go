package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"pronto-ballbot/internal/model"
)

// ErrCorrupt marks a stored record that was read but could not be decoded.
// Callers may start over from an empty record; any other Load error is
// transient and the stored record must not be overwritten.
var ErrCorrupt = errors.New("inventory record is corrupt")

// InventoryRepository stores the whole inventory record. Load always returns
// the complete record and Save replaces it.
type InventoryRepository interface {
	Load(ctx context.Context) (model.Inventories, error)

	Save(ctx context.Context, inv model.Inventories) error

	// GetStats returns statistics about the backing store.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	Close() error
}

// encodeRows flattens the record into one row per user, sorted by user id.
func encodeRows(inv model.Inventories, now time.Time) ([]model.InventoryRow, error) {
	users := make([]string, 0, len(inv))
	for user := range inv {
		users = append(users, user)
	}
	sort.Strings(users)

	rows := make([]model.InventoryRow, 0, len(users))
	for _, user := range users {
		items := inv[user]
		if items == nil {
			items = []string{}
		}
		raw, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("failed to encode items of %s: %w", user, err)
		}
		rows = append(rows, model.InventoryRow{UserID: user, ItemsJSON: raw, UpdatedAt: now})
	}
	return rows, nil
}

func decodeRow(inv model.Inventories, userID string, itemsJSON []byte) error {
	var items []string
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return fmt.Errorf("failed to decode items of %s: %w: %w", userID, ErrCorrupt, err)
	}
	inv[userID] = items
	return nil
}

// staleUsers returns the stored user ids that are no longer in inv.
func staleUsers(stored []string, inv model.Inventories) []string {
	var out []string
	for _, user := range stored {
		if _, ok := inv[user]; !ok {
			out = append(out, user)
		}
	}
	return out
}
