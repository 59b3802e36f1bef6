package game

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawnExpired means nobody caught the spawned item in time.
	ErrSpawnExpired = errors.New("game: the ball got away")

	// ErrSpawnInProgress is returned when a spawn is requested while another
	// one is still waiting for a catch.
	ErrSpawnInProgress = errors.New("game: a ball is already out")
)

// NotOwnedError means the user does not own the item.
type NotOwnedError struct {
	UserID string
	Item   string
}

func (e *NotOwnedError) Error() string {
	return fmt.Sprintf("you don't have %s", e.Item)
}

// UnknownItemError means the name matches no catalog entry.
type UnknownItemError struct {
	Name string
}

func (e *UnknownItemError) Error() string {
	return fmt.Sprintf("%s doesn't exist", e.Name)
}

// IsUserFacing reports whether err should be shown to the chat user rather
// than logged as a fault.
func IsUserFacing(err error) bool {
	var notOwned *NotOwnedError
	var unknown *UnknownItemError
	return errors.As(err, &notOwned) ||
		errors.As(err, &unknown) ||
		errors.Is(err, ErrSpawnExpired) ||
		errors.Is(err, ErrSpawnInProgress)
}
