package model

import "errors"

// Sentinel errors for model validation and lookups.
var (
	ErrInvalidEvent     = errors.New("invalid notification event")
	ErrInvalidFrequency = errors.New("invalid frequency")
	// ErrNotFound is wrapped by stores when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
)
