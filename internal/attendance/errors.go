package attendance

import (
	"errors"

	"github.com/kozaktomas/face-sync/internal/database"
)

var (
	// ErrValidation is returned for malformed input: missing identifiers or
	// a sample of the wrong dimension.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for unknown courses, sessions, students and templates.
	ErrNotFound = database.ErrNotFound

	// ErrConflict is returned when a session update could not be applied
	// within the bounded number of attempts or lock wait.
	ErrConflict = errors.New("concurrent update conflict")
)
