package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/agora/internal/config"
	"github.com/okian/agora/pkg/logger"
)

// rootOptions holds global flags and the state every subcommand shares.
type rootOptions struct {
	Store  string
	DryRun bool
	Seed   int

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "agora",
		Short: "Content ranking and notification digests for community forums",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd.Context())
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "override the store backend (memory|postgres)")
	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "log emails instead of sending them")
	cmd.PersistentFlags().IntVar(&opts.Seed, "seed", 0, "seed N synthetic communities into the memory store")

	cmd.AddCommand(newRescoreCommand(opts))
	cmd.AddCommand(newDigestCommand(opts))
	cmd.AddCommand(newNewsletterCommand(opts))
	cmd.AddCommand(newInviteCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	return cmd
}

// init loads configuration and sets up logging. Failures here are the only
// ones that give a non-zero exit.
func (o *rootOptions) init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if o.Store != "" {
		cfg.Store = o.Store
	}
	if o.DryRun {
		cfg.Notifier = config.NotifierLog
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel),
			logger.Error(err),
		)
		_ = logger.SetLevelString("info")
	}
	o.cfg = cfg
	return nil
}
