// Package uid issues client-side identifiers: request ids for the status API
// and correlation ids for outbound chat messages.
package uid

import "github.com/google/uuid"

// New generates a new random (v4) identifier.
func New() string {
	return uuid.NewString()
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
