package store

import "fmt"

var (
	// ErrNotFound is returned when no value exists for the given key.
	ErrNotFound = fmt.Errorf("key not found")
)
