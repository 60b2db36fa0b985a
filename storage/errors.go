package storage

import "errors"

// ErrNotFound is returned when no record matches the lookup.
var ErrNotFound = errors.New("session key not found")

// ErrStateConflict is returned when a conditional update's expected state
// does not match the stored record. This is the optimistic "update where
// state = X" guard that prevents double activation.
var ErrStateConflict = errors.New("session key state conflict")
