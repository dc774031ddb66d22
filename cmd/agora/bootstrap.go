package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/okian/agora/internal/adapters/cache"
	"github.com/okian/agora/internal/adapters/notify"
	"github.com/okian/agora/internal/adapters/repository"
	service "github.com/okian/agora/internal/app"
	"github.com/okian/agora/internal/config"
	"github.com/okian/agora/internal/seed"
	"github.com/okian/agora/pkg/logger"
)

// unreadCounter is what the service needs from a counter backend.
type unreadCounter interface {
	Incr(ctx context.Context, personID string) (int64, error)
	Close() error
}

// bootstrap builds the service from configuration. The returned cleanup
// releases the store and counter connections. seedCommunities > 0 fills an
// in-memory store with a synthetic forum.
func bootstrap(ctx context.Context, cfg *config.Config, clock clockwork.Clock, seedCommunities int) (*service.Service, func(), error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	counter, err := openCounter(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	svc := service.New(store, buildNotifier(cfg),
		service.WithClock(clock),
		service.WithUnreadCounter(counter),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.EventQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithRescore(cfg.RescoreWindow(), cfg.RescoreConcurrency),
		service.WithChatLookback(cfg.ChatLookback()),
		service.WithWeeklyDay(cfg.WeeklyDay()),
		service.WithDigestConcurrency(cfg.DigestConcurrency, cfg.RecipientConcurrency),
		service.WithSendTimeout(cfg.NotifierTimeout()),
		service.WithNotificationTemplate(cfg.NotificationTemplateID, cfg.SenderAddress),
		service.WithNewsletterTemplate(cfg.NewsletterTemplateID, cfg.NewsletterSenderAddress),
		service.WithInvitationTemplate(cfg.InvitationTemplateID, cfg.InvitationSenderAddress),
		service.WithLogger(logger.Get().Named("service")),
	)

	if mem, ok := store.(*repository.MemStore); ok && seedCommunities > 0 {
		seedCfg := seed.DefaultConfig(seedCommunities)
		seedCfg.Now = clock.Now()
		if _, err := seed.Generate(ctx, seedCfg, mem, svc); err != nil {
			_ = counter.Close()
			store.Close()
			return nil, nil, fmt.Errorf("seed store: %w", err)
		}
	}

	cleanup := func() {
		if err := counter.Close(); err != nil {
			logger.Get().Warn(ctx, "closing unread counter", logger.Error(err))
		}
		store.Close()
	}
	return svc, cleanup, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		store, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.StoreMemory:
		logger.Get().Warn(ctx, "using in-memory store; nothing is persisted")
		return repository.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, cfg.Store)
	}
}

func openCounter(ctx context.Context, cfg *config.Config) (unreadCounter, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemCounter(), nil
	}
	counter, err := cache.NewRedisCounter(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if err := counter.Ping(ctx); err != nil {
		_ = counter.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return counter, nil
}

// buildNotifier stacks rate limiting over the circuit breaker over the
// provider client.
func buildNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Notifier == config.NotifierLog {
		return notify.NewLogNotifier()
	}
	provider := notify.NewPostmark(cfg.PostmarkServerToken, notify.WithBaseURL(cfg.PostmarkBaseURL))
	breaker := notify.NewBreaker(provider, notify.BreakerSettings{
		Name:         "postmark",
		FailureRatio: cfg.BreakerFailureRatio,
		MinRequests:  uint32(max(cfg.BreakerMinRequests, 0)), //nolint:gosec // bounded by config validation
		OpenTimeout:  cfg.BreakerTimeout(),
	})
	return notify.NewRateLimited(breaker, cfg.NotifierRatePerSecond, cfg.NotifierBurst)
}
