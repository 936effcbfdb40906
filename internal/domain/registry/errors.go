package registry

import "errors"

// Sentinel kinds for registry errors.
var (
	ErrUnknownSession = errors.New("unknown session")
	ErrInvalidInput   = errors.New("invalid input")
)
