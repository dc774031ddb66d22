package notify

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
	"github.com/okian/agora/pkg/metrics"
)

// BreakerSettings configures Breaker.
type BreakerSettings struct {
	Name string
	// FailureRatio of transient failures that opens the circuit once
	// MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
}

// Breaker stops calling a failing provider. While open, sends fail fast
// with ErrTransient. Permanent failures do not count against the provider.
type Breaker struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker[struct{}]
	name string
}

// NewBreaker wraps next.
func NewBreaker(next Notifier, s BreakerSettings) *Breaker {
	if s.Name == "" {
		s.Name = "notifier"
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.6
	}
	if s.MinRequests == 0 {
		s.MinRequests = 10
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = time.Minute
	}
	log := logger.Get().Named("notify.breaker")

	metrics.UpdateBreakerState(s.Name, 0)
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrPermanent)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "circuit state changed",
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			metrics.UpdateBreakerState(name, stateValue(to))
		},
	})
	return &Breaker{next: next, cb: cb, name: s.Name}
}

// Send delivers through the wrapped notifier unless the circuit is open.
func (b *Breaker) Send(ctx context.Context, email model.Email) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, email)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordNotifierRejection()
		return errors.Join(ErrTransient, err)
	}
	return err
}

// State returns the current circuit state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
