// Package store persists signals and bot configurations with gorm.
package store

import "errors"

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional update matched no row:
	// the signal changed since it was read or is already terminal.
	ErrConflict = errors.New("signal was modified concurrently or is closed")
)
