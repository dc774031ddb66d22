// Package scoring maps a scored entity's votes and age to its rank score.
package scoring

import (
	"math"
	"time"

	"github.com/okian/agora/internal/domain/model"
)

// minuteDivisor compresses the time term: seconds are divided by 60000,
// not 60. Stored scores depend on it, so it must not change.
const minuteDivisor = 60000.0

// DefaultEpoch is the reference instant of the post time term.
var DefaultEpoch = time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // fixed reference instant

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithEpoch overrides the reference instant. Only meant for tests and
// fresh deployments: existing scores were computed against DefaultEpoch.
func WithEpoch(epoch time.Time) Option {
	return func(p *Policy) {
		if !epoch.IsZero() {
			p.epoch = epoch.UTC()
		}
	}
}

// Policy computes scores. It holds no mutable state and is safe for
// concurrent use.
type Policy struct {
	epoch time.Time
}

// NewPolicy creates a scoring policy.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{epoch: DefaultEpoch}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Score returns the rank score of e.
//
// Posts: log10(votes+1) + MinutesSinceEpoch(posted).
// Comments: the vote count, without decay.
func (p *Policy) Score(e model.ScoredEntity) float64 {
	if e.Kind() == model.KindComment {
		return CommentScore(e.Votes())
	}
	return p.PostScore(e.Votes(), e.Posted())
}

// PostScore is the hot-ordering score for a post.
func (p *Policy) PostScore(votes int, posted time.Time) float64 {
	if votes < 0 {
		votes = 0
	}
	return math.Log10(float64(votes)+1) + p.MinutesSinceEpoch(posted)
}

// CommentScore ranks comments purely by votes.
func CommentScore(votes int) float64 {
	return float64(votes)
}

// MinutesSinceEpoch returns (t - epoch) seconds / 60000.
func (p *Policy) MinutesSinceEpoch(t time.Time) float64 {
	return t.Sub(p.epoch).Seconds() / minuteDivisor
}

// ShouldRescore reports whether e takes part in a rescore pass. Posts are
// always rescored while in the window; comments only until their first
// rescore.
func (p *Policy) ShouldRescore(e model.ScoredEntity) bool {
	return e.RescoreEligible()
}
