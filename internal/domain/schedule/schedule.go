// Package schedule decides whether a batch cycle fires on a given day.
package schedule

import (
	"time"

	"github.com/okian/agora/internal/domain/model"
)

// DefaultWeeklyDay is used when neither the frequency nor the configuration
// names a weekly day.
const DefaultWeeklyDay = time.Saturday

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithWeeklyDay sets the fallback weekday for weekly frequencies that carry
// no day of their own.
func WithWeeklyDay(day time.Weekday) Option {
	return func(s *Scheduler) {
		if day >= time.Sunday && day <= time.Saturday {
			s.weeklyDay = day
		}
	}
}

// Scheduler is stateless apart from its fallback weekday.
type Scheduler struct {
	weeklyDay time.Weekday
}

// New creates a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{weeklyDay: DefaultWeeklyDay}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShouldRunToday reports whether a batch cycle for f fires on today.
//
// Never and Immediate never fire here: immediate sends are driven by post
// creation. Hourly and Daily always fire since the external trigger already
// matches their cadence. Weekly fires on its resolved day only.
func (s *Scheduler) ShouldRunToday(f model.Frequency, today time.Time) bool {
	switch f.Cadence {
	case model.CadenceHourly, model.CadenceDaily:
		return true
	case model.CadenceWeekly:
		return today.Weekday() == s.WeeklyDay(f)
	default:
		return false
	}
}

// WeeklyDay resolves the weekday a weekly frequency fires on.
func (s *Scheduler) WeeklyDay(f model.Frequency) time.Weekday {
	if f.Day != nil {
		return *f.Day
	}
	return s.weeklyDay
}

// LookbackDays is the newsletter content window for f: one day for daily,
// seven for weekly, zero otherwise.
func LookbackDays(f model.Frequency) int {
	switch f.Cadence {
	case model.CadenceDaily:
		return 1
	case model.CadenceWeekly:
		return 7
	default:
		return 0
	}
}
