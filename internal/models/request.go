// Package models - API request types and input validation.
package models

import (
	"errors"
	"strings"
)

// AddAllowEntryRequest adds a key to the allow-list.
type AddAllowEntryRequest struct {
	Key  string `json:"key"`
	Note string `json:"note,omitempty"`
}

// Normalize trims surrounding whitespace.
func (r *AddAllowEntryRequest) Normalize() {
	r.Key = strings.TrimSpace(r.Key)
	r.Note = strings.TrimSpace(r.Note)
}

func (r *AddAllowEntryRequest) Validate() error {
	if r.Key == "" {
		return errors.New("key is required")
	}
	entry := AllowEntry{Key: r.Key, Note: r.Note}
	return entry.Validate()
}
