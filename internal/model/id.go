package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is an opaque identifier issued by the messaging service. The service emits
// ids as JSON numbers; ids are only ever compared for equality.
type ID string

// String returns the id as a string.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty.
func (id ID) IsZero() bool {
	return id == ""
}

// UnmarshalJSON accepts both numeric and string ids.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("failed to decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as bare numbers and anything else as a string.
func (id ID) MarshalJSON() ([]byte, error) {
	s := string(id)
	if isDigits(s) {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func isDigits(s string) bool {
	if s == "" || (len(s) > 1 && strings.HasPrefix(s, "0")) {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
