package config

import "errors"

var (
	// ErrInvalidConfig wraps every Validate failure; several are joined.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks a YAML file or env provider that could not be read.
	ErrLoadConfig = errors.New("load config failed")
)
