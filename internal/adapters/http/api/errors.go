package api

import "errors"

var (
	// ErrBadRequest is a hook body that is malformed or misses an id.
	ErrBadRequest = errors.New("bad request")
	// ErrBackpressure means the immediate-send queue refused the jobs.
	ErrBackpressure = errors.New("backpressure")
)
