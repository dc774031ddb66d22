// Package rescore recomputes scores for content inside a trailing window.
package rescore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
	"github.com/okian/agora/pkg/metrics"
)

const (
	// DefaultWindow is the trailing span in which content is re-ranked.
	DefaultWindow      = 30 * 24 * time.Hour
	defaultConcurrency = 8
)

// Store is the persistence the rescorer needs.
type Store interface {
	ListPostsSince(ctx context.Context, since time.Time) ([]*model.Post, error)
	ListCommentsSince(ctx context.Context, since time.Time) ([]*model.Comment, error)
	SavePostScore(ctx context.Context, postID string, score float64) error
	FreezeCommentScore(ctx context.Context, commentID string, score float64) error
}

// Policy computes scores.
type Policy interface {
	Score(e model.ScoredEntity) float64
	ShouldRescore(e model.ScoredEntity) bool
}

// Report summarises one rescore pass.
type Report struct {
	Selected int
	Skipped  int
	Updated  int
	Failed   int
	Duration time.Duration
}

// Rescorer applies a Policy to every eligible entity in the window.
type Rescorer struct {
	store       Store
	policy      Policy
	window      time.Duration
	concurrency int
	logger      logger.Logger
}

// Option applies a configuration option to the Rescorer.
type Option func(*Rescorer)

// WithWindow overrides DefaultWindow.
func WithWindow(window time.Duration) Option {
	return func(r *Rescorer) {
		if window > 0 {
			r.window = window
		}
	}
}

// WithConcurrency bounds the number of entities written in parallel.
func WithConcurrency(n int) Option {
	return func(r *Rescorer) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Rescorer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Rescorer.
func New(store Store, policy Policy, opts ...Option) *Rescorer {
	r := &Rescorer{
		store:       store,
		policy:      policy,
		window:      DefaultWindow,
		concurrency: defaultConcurrency,
		logger:      logger.Get().Named("rescore"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Window returns the configured window.
func (r *Rescorer) Window() time.Duration { return r.window }

// Rescore runs one pass over entities created at or after now-window.
//
// A failed write is logged and counted; the pass continues. Only a failure
// to list entities or a cancelled context is returned as an error, and the
// report still reflects the writes that completed before it.
func (r *Rescorer) Rescore(ctx context.Context, now time.Time) (Report, error) {
	start := time.Now()
	since := now.Add(-r.window)

	posts, err := r.store.ListPostsSince(ctx, since)
	if err != nil {
		return Report{}, fmt.Errorf("list posts: %w", err)
	}
	comments, err := r.store.ListCommentsSince(ctx, since)
	if err != nil {
		return Report{}, fmt.Errorf("list comments: %w", err)
	}

	entities := make([]model.ScoredEntity, 0, len(posts)+len(comments))
	for _, p := range posts {
		entities = append(entities, p)
	}
	for _, c := range comments {
		entities = append(entities, c)
	}

	var updated, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, e := range entities {
		if gctx.Err() != nil {
			break
		}
		if !r.policy.ShouldRescore(e) {
			skipped.Add(1)
			continue
		}
		g.Go(func() error {
			if err := r.apply(gctx, e); err != nil {
				failed.Add(1)
				metrics.RecordRescoreFailure(string(e.Kind()))
				r.logger.Warn(gctx, "rescore failed",
					logger.String("kind", string(e.Kind())),
					logger.String("id", e.EntityID()),
					logger.Error(err),
				)
				return nil
			}
			updated.Add(1)
			metrics.RecordEntityRescored(string(e.Kind()))
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Selected: len(entities),
		Skipped:  int(skipped.Load()),
		Updated:  int(updated.Load()),
		Failed:   int(failed.Load()),
		Duration: time.Since(start),
	}
	metrics.ObserveRescoreRun(report.Duration.Seconds(), now.Unix())
	r.logger.Info(ctx, "rescore pass finished",
		logger.Int("selected", report.Selected),
		logger.Int("updated", report.Updated),
		logger.Int("skipped", report.Skipped),
		logger.Int("failed", report.Failed),
		logger.Duration("duration", report.Duration),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("rescore interrupted: %w", err)
	}
	return report, nil
}

func (r *Rescorer) apply(ctx context.Context, e model.ScoredEntity) error {
	score := r.policy.Score(e)
	if e.Kind() == model.KindComment {
		return r.store.FreezeCommentScore(ctx, e.EntityID(), score)
	}
	return r.store.SavePostScore(ctx, e.EntityID(), score)
}
