package notify

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/okian/agora/internal/domain/model"
)

// RateLimited spaces out sends to stay under the provider's rate limit.
type RateLimited struct {
	next    Notifier
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond sends with bursts of burst. perSecond <= 0
// disables limiting.
func NewRateLimited(next Notifier, perSecond float64, burst int) *RateLimited {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Send waits for a token, then delivers. Running out of time while waiting
// is a transient failure.
func (r *RateLimited) Send(ctx context.Context, email model.Email) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %w", ErrTransient, err)
	}
	return r.next.Send(ctx, email)
}

// State reports the wrapped notifier's circuit state, if it has one.
func (r *RateLimited) State() string {
	if s, ok := r.next.(interface{ State() string }); ok {
		return s.State()
	}
	return ""
}
