package repository

import (
	"errors"

	"github.com/okian/agora/internal/domain/model"
)

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = model.ErrNotFound
	ErrInvalidEvent = errors.New("invalid event")
)
