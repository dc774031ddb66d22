package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "AGORA_"
	envConfig  = "AGORA_CONFIG"
	keyDivider = "."
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if AGORA_CONFIG is set
//  3. env (prefix AGORA_)
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(keyDivider)

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// AGORA_QUEUE_SIZE -> queue_size. Underscores are kept to match the
	// flat koanf tags.
	envProvider := env.Provider(envPrefix, keyDivider, func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Addr == "" {
		invalid("addr must not be empty")
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			invalid("database_url is required for store %q", c.Store)
		}
	default:
		invalid("unknown store %q", c.Store)
	}
	switch c.Notifier {
	case NotifierLog:
	case NotifierPostmark:
		if c.PostmarkServerToken == "" {
			invalid("postmark_server_token is required for notifier %q", c.Notifier)
		}
	default:
		invalid("unknown notifier %q", c.Notifier)
	}
	if _, ok := parseWeekday(c.WeeklyDigestDay); !ok {
		invalid("weekly_digest_day %q is not a weekday", c.WeeklyDigestDay)
	}
	if c.RescoreWindowDays <= 0 {
		invalid("rescore_window_days must be positive")
	}
	if c.ChatLookbackDays <= 0 {
		invalid("chat_lookback_days must be positive")
	}
	if c.NotifierTimeoutMS <= 0 {
		invalid("notifier_timeout_ms must be positive")
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		invalid("breaker_failure_ratio must be in (0, 1]")
	}
	if c.SenderAddress == "" || c.NewsletterSenderAddress == "" || c.InvitationSenderAddress == "" {
		invalid("sender addresses must not be empty")
	}
	return errors.Join(errs...)
}
