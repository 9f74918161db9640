package models

import (
	"errors"
	"strings"
	"time"
)

// AllowEntry is a persisted key that bypasses rate limiting. Key holds the
// canonical text form of the limiter key (an IP address, token or header
// value depending on the configured extractor).
type AllowEntry struct {
	Key       string    `json:"key" db:"key"`
	Note      string    `json:"note,omitempty" db:"note"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (e *AllowEntry) Validate() error {
	if strings.TrimSpace(e.Key) == "" {
		return errors.New("key is required")
	}
	if len(e.Key) > 512 {
		return errors.New("key must be at most 512 characters")
	}
	if len(e.Note) > 1024 {
		return errors.New("note must be at most 1024 characters")
	}
	return nil
}
