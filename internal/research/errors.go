package research

import "errors"

var (
	// ErrInvalidName is returned when a project name is blank
	ErrInvalidName = errors.New("project name is required")

	// ErrProjectNotFound is returned when a project is not found
	ErrProjectNotFound = errors.New("project not found")

	// ErrSessionNotFound is returned when a session is not found or belongs
	// to another project
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyTranscript is returned when no turns could be parsed
	ErrEmptyTranscript = errors.New("could not parse any turns from transcript")

	// ErrInvalidStatus is returned when a session is not in a state that
	// allows the requested step
	ErrInvalidStatus = errors.New("session status does not allow this operation")
)
