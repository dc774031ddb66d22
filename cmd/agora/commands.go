package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/okian/agora/internal/adapters/http/api"
	"github.com/okian/agora/internal/adapters/http/swagger"
	service "github.com/okian/agora/internal/app"
	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout          = 10 * time.Second
	writeTimeout         = 10 * time.Second
	idleTimeout          = 60 * time.Second
	readHeaderTimeout    = 5 * time.Second
	shutdownTimeout      = 30 * time.Second
	statsRefreshInterval = 5 * time.Second
)

// withService runs fn against a freshly bootstrapped service. SIGINT and
// SIGTERM cancel the context; work already marked stays marked.
func withService(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, svc *service.Service) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := bootstrap(ctx, opts.cfg, clockwork.NewRealClock(), opts.Seed)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, svc)
}

func newRescoreCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rescore",
		Short: "Recompute hot scores for posts and comments in the rescore window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				log := logger.Get().Named("cmd.rescore")
				report, err := svc.RescorePosts(ctx)
				if err != nil {
					log.Error(ctx, "rescore did not complete", logger.Error(err))
					return nil
				}
				log.Info(ctx, "rescore done",
					logger.Int("updated", report.Updated),
					logger.Int("failed", report.Failed),
				)
				return nil
			})
		},
	}
}

// parseDigestCadence accepts the batch cadences only.
func parseDigestCadence(s string) (model.Cadence, error) {
	c, err := model.ParseCadence(strings.TrimSpace(s))
	if err != nil {
		return c, err
	}
	switch c {
	case model.CadenceHourly, model.CadenceDaily, model.CadenceWeekly:
		return c, nil
	default:
		return c, fmt.Errorf("%w: %q has no digest cycle", model.ErrInvalidFrequency, s)
	}
}

func newDigestCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "digest <hourly|daily|weekly>",
		Short:     "Email pending reply and direct-message digests for one cadence",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"hourly", "daily", "weekly"},
		PreRunE: func(_ *cobra.Command, args []string) error {
			_, err := parseDigestCadence(args[0])
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cadence, _ := parseDigestCadence(args[0])
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				log := logger.Get().Named("cmd.digest")
				report, err := svc.RunDigest(ctx, cadence)
				if err != nil {
					log.Error(ctx, "digest did not complete", logger.Error(err))
					return nil
				}
				log.Info(ctx, "digest done",
					logger.String("cadence", cadence.String()),
					logger.Int("communities", report.Communities),
					logger.Int("sent", report.Delivery.Sent),
					logger.Int("failed", report.Delivery.Failed),
				)
				return nil
			})
		},
	}
}

func newNewsletterCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "newsletter",
		Short: "Send the community post digests due today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				log := logger.Get().Named("cmd.newsletter")
				report, err := svc.SendNewsletters(ctx)
				if err != nil {
					log.Error(ctx, "newsletter did not complete", logger.Error(err))
					return nil
				}
				log.Info(ctx, "newsletter done",
					logger.Int("communities", report.Communities),
					logger.Int("sent", report.Sent),
					logger.Int("failed", report.Failed),
				)
				return nil
			})
		},
	}
}

func newInviteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invite <community> <email>...",
		Short: "Email invitations to join a community",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				log := logger.Get().Named("cmd.invite")
				report, err := svc.SendInvitations(ctx, args[0], args[1:])
				if err != nil {
					log.Error(ctx, "invitations did not complete", logger.Error(err))
					return nil
				}
				log.Info(ctx, "invitations done",
					logger.String("community", args[0]),
					logger.Int("sent", report.Sent),
					logger.Int("failed", report.Failed),
					logger.Int("invalid", report.Invalid),
				)
				return nil
			})
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the rescore ticker, immediate-send workers and operator HTTP endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *service.Service) error {
				return serve(ctx, opts, svc)
			})
		},
	}
}

func serve(ctx context.Context, opts *rootOptions, svc *service.Service) error {
	log := logger.Get().Named("cmd.serve")
	cfg := opts.cfg

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()

	go svc.RunRescoreLoop(ctx, cfg.RescoreInterval())
	go refreshStats(ctx, svc)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)
	swagger.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// refreshStats keeps queue gauges current between scrapes.
func refreshStats(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(statsRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
