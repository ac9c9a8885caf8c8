package database

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity does not exist in the local store.
	ErrNotFound = errors.New("entity not found")

	// ErrUnknownKind is returned for an entity kind the store has no table for.
	ErrUnknownKind = errors.New("unknown entity kind")
)

// MigrationError reports a schema migration step that could not be applied.
// The store refuses to open when this happens.
type MigrationError struct {
	Version int
	Name    string
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", e.Version, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}
