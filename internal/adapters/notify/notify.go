// Package notify delivers templated emails and wraps delivery with rate
// limiting and a circuit breaker.
package notify

import (
	"context"
	"errors"

	"github.com/okian/agora/internal/domain/model"
)

// Sentinel kinds for delivery errors. Either leaves recipient state
// unmarked; transient failures are expected to clear by the next cycle.
var (
	ErrTransient = errors.New("transient delivery failure")
	ErrPermanent = errors.New("permanent delivery failure")
)

// Notifier delivers one templated email.
type Notifier interface {
	Send(ctx context.Context, email model.Email) error
}

// IsTransient reports whether err is worth retrying on a later cycle.
// Errors that are not classified count as transient.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrPermanent)
}
