package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
	"github.com/okian/agora/pkg/metrics"
)

// CommunityLister lists every community.
type CommunityLister interface {
	ListCommunities(ctx context.Context) ([]*model.Community, error)
}

// RunReport summarises a digest cycle across communities.
type RunReport struct {
	Communities int
	Recipients  int
	Delivery    DeliveryReport
	// CommunityErrors counts communities whose collection failed outright.
	CommunityErrors int
	Duration        time.Duration
}

// Runner drives collect, aggregate and deliver for every community.
type Runner struct {
	communities CommunityLister
	collector   *Collector
	aggregator  *Aggregator
	concurrency int
	logger      logger.Logger
}

// NewRunner creates a Runner. concurrency bounds communities processed in
// parallel; values below 1 mean one at a time.
func NewRunner(communities CommunityLister, collector *Collector, aggregator *Aggregator, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		communities: communities,
		collector:   collector,
		aggregator:  aggregator,
		concurrency: concurrency,
		logger:      logger.Get().Named("digest.runner"),
	}
}

// Run executes one cycle for frequency at logical time now. It returns an
// error only when communities cannot be listed or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, frequency model.Frequency, now time.Time) (RunReport, error) {
	start := time.Now()
	communities, err := r.communities.ListCommunities(ctx)
	if err != nil {
		return RunReport{}, fmt.Errorf("list communities: %w", err)
	}

	var (
		mu     sync.Mutex
		report = RunReport{Communities: len(communities)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, community := range communities {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			accs, err := r.collector.Collect(gctx, community, frequency, now)
			if err != nil {
				r.logger.Error(gctx, "collect failed",
					logger.String("community_id", community.ID),
					logger.Error(err),
				)
				mu.Lock()
				report.CommunityErrors++
				mu.Unlock()
				return nil
			}
			payloads := r.aggregator.Aggregate(gctx, community, accs)
			delivery := r.aggregator.Deliver(gctx, frequency, payloads)

			mu.Lock()
			report.Recipients += len(payloads)
			report.Delivery.Add(delivery)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	metrics.ObserveDigestRun("notification", frequency.Cadence.String(), report.Duration.Seconds())
	r.logger.Info(ctx, "digest cycle finished",
		logger.String("frequency", frequency.String()),
		logger.Int("communities", report.Communities),
		logger.Int("recipients", report.Recipients),
		logger.Int("sent", report.Delivery.Sent),
		logger.Int("failed", report.Delivery.Failed),
		logger.Int("skipped", report.Delivery.Skipped),
		logger.Duration("duration", report.Duration),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("digest cycle interrupted: %w", err)
	}
	return report, nil
}
