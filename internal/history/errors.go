package history

import "errors"

// Domain errors for the history package.
var (
	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("history: run not found")

	// ErrRunExists is returned when saving a run whose ID is already stored.
	ErrRunExists = errors.New("history: run already exists")

	// ErrInvalidRun is returned when a run is missing required fields.
	ErrInvalidRun = errors.New("history: invalid run")
)
