package storage

import "errors"

// ErrNotFound is returned when an allow-list entry does not exist.
var ErrNotFound = errors.New("allow-list entry not found")
