package model

import "time"

// Inventories maps a user id to the items that user owns, in acquisition order.
// Duplicates are allowed.
type Inventories map[string][]string

// Clone returns a deep copy so callers can mutate it without touching the source.
func (inv Inventories) Clone() Inventories {
	out := make(Inventories, len(inv))
	for user, items := range inv {
		out[user] = append([]string(nil), items...)
	}
	return out
}

// Total returns the number of items across all users.
func (inv Inventories) Total() int {
	n := 0
	for _, items := range inv {
		n += len(items)
	}
	return n
}

// Count returns how many units of item the user owns.
func (inv Inventories) Count(userID, item string) int {
	n := 0
	for _, it := range inv[userID] {
		if it == item {
			n++
		}
	}
	return n
}

// InventoryRow is a single user's inventory as stored by row-oriented backends.
type InventoryRow struct {
	UserID    string
	ItemsJSON []byte
	UpdatedAt time.Time
}

// ItemCount is a grouped inventory line for display.
type ItemCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
