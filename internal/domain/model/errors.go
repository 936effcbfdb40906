package model

import "errors"

// Sentinel kinds for incident validation errors.
var (
	ErrInvalidIncidentType = errors.New("invalid incident type")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrInvalidSeverity     = errors.New("severity must be between 1 and 5")
	ErrInvalidDescription  = errors.New("description must be non-empty and at most 500 characters")
)
