// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Every key has a default in New so a bare environment is runnable.
// - Durations are stored in their natural unit and exposed as time.Duration.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"runtime"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Notifier backends.
const (
	NotifierPostmark = "postmark"
	NotifierLog      = "log"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the operator HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Store selects the repository backend: memory or postgres.
	Store       string `koanf:"store"`
	DatabaseURL string `koanf:"database_url"`
	// RedisURL enables the shared unread counter. Empty keeps counts in process.
	RedisURL string `koanf:"redis_url"`

	RescoreWindowDays      int `koanf:"rescore_window_days"`
	RescoreIntervalSeconds int `koanf:"rescore_interval_seconds"`
	RescoreConcurrency     int `koanf:"rescore_concurrency"`

	ChatLookbackDays int `koanf:"chat_lookback_days"`
	// WeeklyDigestDay is the weekday name used when a weekly frequency
	// carries no day of its own.
	WeeklyDigestDay      string `koanf:"weekly_digest_day"`
	DigestConcurrency    int    `koanf:"digest_concurrency"`
	RecipientConcurrency int    `koanf:"recipient_concurrency"`

	Notifier                string  `koanf:"notifier"`
	NotifierTimeoutMS       int     `koanf:"notifier_timeout_ms"`
	PostmarkServerToken     string  `koanf:"postmark_server_token"`
	PostmarkBaseURL         string  `koanf:"postmark_base_url"`
	SenderAddress           string  `koanf:"sender_address"`
	NewsletterSenderAddress string  `koanf:"newsletter_sender_address"`
	NotificationTemplateID  string  `koanf:"notification_template_id"`
	NewsletterTemplateID    string  `koanf:"newsletter_template_id"`
	InvitationSenderAddress string  `koanf:"invitation_sender_address"`
	InvitationTemplateID    string  `koanf:"invitation_template_id"`
	NotifierRatePerSecond   float64 `koanf:"notifier_rate_per_second"`
	NotifierBurst           int     `koanf:"notifier_burst"`

	BreakerFailureRatio   float64 `koanf:"breaker_failure_ratio"`
	BreakerMinRequests    int     `koanf:"breaker_min_requests"`
	BreakerTimeoutSeconds int     `koanf:"breaker_timeout_seconds"`

	// WorkerCount sets the number of immediate-send workers.
	WorkerCount int `koanf:"worker_count"`
	// EventQueueSize bounds the in-memory delivery queue.
	EventQueueSize int `koanf:"queue_size"`
	// DedupeSize bounds the in-flight claim cache.
	DedupeSize int `koanf:"dedupe_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		Store:                   StoreMemory,
		RescoreWindowDays:       30,
		RescoreIntervalSeconds:  600,
		RescoreConcurrency:      8,
		ChatLookbackDays:        32,
		WeeklyDigestDay:         "saturday",
		DigestConcurrency:       4,
		RecipientConcurrency:    8,
		Notifier:                NotifierLog,
		NotifierTimeoutMS:       10_000,
		SenderAddress:           "notifications@comradery.io",
		NewsletterSenderAddress: "digest@comradery.io",
		NotificationTemplateID:  "notification-digest",
		NewsletterTemplateID:    "newsletter-digest",
		InvitationSenderAddress: "invitations@comradery.io",
		InvitationTemplateID:    "community-invitation",
		NotifierRatePerSecond:   50,
		NotifierBurst:           10,
		BreakerFailureRatio:     0.6,
		BreakerMinRequests:      10,
		BreakerTimeoutSeconds:   60,
		WorkerCount:             runtime.NumCPU() * 2,
		EventQueueSize:          10_000,
		DedupeSize:              50_000,
	}
}

// RescoreWindow is the lookback of a rescore pass.
func (c *Config) RescoreWindow() time.Duration {
	return time.Duration(c.RescoreWindowDays) * 24 * time.Hour
}

// RescoreInterval is the period of the rescore ticker in serve mode.
func (c *Config) RescoreInterval() time.Duration {
	return time.Duration(c.RescoreIntervalSeconds) * time.Second
}

// ChatLookback bounds how old a direct message may be and still be emailed.
func (c *Config) ChatLookback() time.Duration {
	return time.Duration(c.ChatLookbackDays) * 24 * time.Hour
}

// NotifierTimeout bounds a single send.
func (c *Config) NotifierTimeout() time.Duration {
	return time.Duration(c.NotifierTimeoutMS) * time.Millisecond
}

// BreakerTimeout is how long an open circuit waits before probing.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutSeconds) * time.Second
}

// WeeklyDay parses WeeklyDigestDay. Call Validate first.
func (c *Config) WeeklyDay() time.Weekday {
	d, _ := parseWeekday(c.WeeklyDigestDay)
	return d
}

var weekdays = map[string]time.Weekday{ //nolint:gochecknoglobals // lookup table
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(s string) (time.Weekday, bool) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}
