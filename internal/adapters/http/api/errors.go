package api

import "errors"

// Sentinel kinds for API errors. Storage failures never leak their cause to
// the client; ErrStorage is the whole message.
var (
	ErrBadRequest = errors.New("bad request")
	ErrStorage    = errors.New("storage unavailable")
)
