package database

import "errors"

var (
	// ErrNotFound is returned when a course, session, student or template does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by UpdateSession when the session changed since it was read.
	ErrVersionConflict = errors.New("session version conflict")

	// ErrOpenSessionExists is returned when another session of the course was opened concurrently.
	ErrOpenSessionExists = errors.New("course already has an open session")
)
