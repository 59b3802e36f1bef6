package publisher

import (
	"errors"
	"fmt"
)

// ErrNotNormalized is returned when a media message is requested for an asset
// that has not been confirmed as normalized.
var ErrNotNormalized = errors.New("publisher: asset is not normalized")

// Stage names the pipeline step that ran out of budget.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StagePost      Stage = "post"
)

// PublishExhaustedError means the retry budget ran out before the server
// accepted the attachment.
type PublishExhaustedError struct {
	Stage         Stage
	Attempts      int
	CorrelationID string
	Last          error
}

func (e *PublishExhaustedError) Error() string {
	if e.Stage == StageNormalize {
		return fmt.Sprintf("publish exhausted: file never normalized: %v", e.Last)
	}
	return fmt.Sprintf("publish exhausted after %d attempts (correlation id %s): %v", e.Attempts, e.CorrelationID, e.Last)
}

func (e *PublishExhaustedError) Unwrap() error {
	return e.Last
}
