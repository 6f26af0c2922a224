package types

import (
	"strings"

	"github.com/google/uuid"
)

// NewAnalysisID returns a time-ordered identifier for a stored analysis.
// UUIDv7 ids sort by creation time, which keeps catalog listings and object
// prefixes in insertion order.
func NewAnalysisID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidAnalysisID reports whether s is a well-formed analysis id.
func ValidAnalysisID(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
