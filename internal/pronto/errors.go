package pronto

import (
	"errors"
	"fmt"
	"strings"
)

// invalidAttachmentCode is the error code the service returns when a message
// references a file key it has not finished processing.
const invalidAttachmentCode = "INVALID_ATTACHMENT_FILE_KEY"

// TransportError is a non-success HTTP response that is not otherwise classified.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	if e == nil {
		return "pronto request failed"
	}
	body := strings.TrimSpace(e.Body)
	if body != "" {
		return fmt.Sprintf("pronto %s: http %d: %s", e.Op, e.StatusCode, body)
	}
	return fmt.Sprintf("pronto %s: http %d", e.Op, e.StatusCode)
}

// NotReadyError means the service does not recognize the attachment key yet.
// The request can be retried once normalization has caught up.
type NotReadyError struct {
	Key  string
	Body string
}

func (e *NotReadyError) Error() string {
	if e.Key == "" {
		return "pronto: attachment not ready"
	}
	return fmt.Sprintf("pronto: attachment %s not ready", e.Key)
}

// IsNotReady reports whether err is, or wraps, a NotReadyError.
func IsNotReady(err error) bool {
	var nr *NotReadyError
	return errors.As(err, &nr)
}

// StatusCode returns the HTTP status carried by a TransportError, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
