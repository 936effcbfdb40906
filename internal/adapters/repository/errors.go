package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrZoneNotFound  = errors.New("zone not found")
	ErrDuplicateZone = errors.New("zone name already exists")
	ErrInvalidZone   = errors.New("invalid zone definition")
)
