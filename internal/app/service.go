// Package service wires the ranking and digest engine together and exposes
// the operations the CLI and the operator HTTP surface trigger.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	eventqueue "github.com/okian/agora/internal/adapters/mq/queue"
	workerpool "github.com/okian/agora/internal/adapters/mq/worker"
	repository "github.com/okian/agora/internal/adapters/repository"
	"github.com/okian/agora/internal/domain/activity"
	"github.com/okian/agora/internal/domain/dedupe"
	"github.com/okian/agora/internal/domain/digest"
	"github.com/okian/agora/internal/domain/invite"
	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/internal/domain/newsletter"
	"github.com/okian/agora/internal/domain/rescore"
	"github.com/okian/agora/internal/domain/schedule"
	"github.com/okian/agora/internal/domain/scoring"
	"github.com/okian/agora/pkg/logger"
	"github.com/okian/agora/pkg/metrics"
)

// ErrNotStarted is returned by operations that need the worker pool.
var ErrNotStarted = errors.New("service not started")

// Notifier delivers one templated email.
type Notifier interface {
	Send(ctx context.Context, email model.Email) error
}

// Service implements the engine's trigger surface.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store    repository.Store
	notifier Notifier
	clock    clockwork.Clock
	counter  activity.UnreadCounter

	// Core components
	guard      dedupe.Deduper
	queue      *eventqueue.InMemoryQueue
	pool       *workerpool.Pool
	rescorer   *rescore.Rescorer
	digests    *digest.Runner
	newsletter *newsletter.Newsletter
	recorder   *activity.Recorder
	inviter    *invite.Inviter

	// Configuration
	workerCount          int
	queueSize            int
	dedupeSize           int
	rescoreWindow        time.Duration
	rescoreConcurrency   int
	chatLookback         time.Duration
	weeklyDay            time.Weekday
	digestConcurrency    int
	recipientConcurrency int
	sendTimeout          time.Duration
	notificationTemplate string
	notificationSender   string
	newsletterTemplate   string
	newsletterSender     string
	invitationTemplate   string
	invitationSender     string

	// State
	started       bool
	lastRescore   rescore.Report
	lastRescoreAt time.Time
	lastDigestAt  map[string]time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithClock sets the logical clock. Tests use a fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithUnreadCounter sets the per-person unread counter.
func WithUnreadCounter(c activity.UnreadCounter) Option {
	return func(s *Service) {
		if c != nil {
			s.counter = c
		}
	}
}

// WithWorkerCount sets the number of immediate-send workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the immediate-send queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the in-flight claim cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRescore sets the rescore window and parallelism.
func WithRescore(window time.Duration, concurrency int) Option {
	return func(s *Service) {
		if window > 0 {
			s.rescoreWindow = window
		}
		if concurrency > 0 {
			s.rescoreConcurrency = concurrency
		}
	}
}

// WithChatLookback bounds how old an unread direct message may be.
func WithChatLookback(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.chatLookback = d
		}
	}
}

// WithWeeklyDay sets the fallback weekday for weekly frequencies.
func WithWeeklyDay(day time.Weekday) Option {
	return func(s *Service) {
		s.weeklyDay = day
	}
}

// WithDigestConcurrency sets community and recipient parallelism.
func WithDigestConcurrency(communities, recipients int) Option {
	return func(s *Service) {
		if communities > 0 {
			s.digestConcurrency = communities
		}
		if recipients > 0 {
			s.recipientConcurrency = recipients
		}
	}
}

// WithSendTimeout bounds every Notifier call.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithNotificationTemplate sets the template and sender of reply/chat digests.
func WithNotificationTemplate(templateID, sender string) Option {
	return func(s *Service) {
		s.notificationTemplate = templateID
		s.notificationSender = sender
	}
}

// WithNewsletterTemplate sets the template and sender of newsletters and
// immediate post emails.
func WithNewsletterTemplate(templateID, sender string) Option {
	return func(s *Service) {
		s.newsletterTemplate = templateID
		s.newsletterSender = sender
	}
}

// WithInvitationTemplate sets the template and sender of invitations.
func WithInvitationTemplate(templateID, sender string) Option {
	return func(s *Service) {
		s.invitationTemplate = templateID
		s.invitationSender = sender
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store and notifier.
func New(store repository.Store, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:                store,
		notifier:             notifier,
		clock:                clockwork.NewRealClock(),
		workerCount:          runtime.NumCPU() * 2,
		queueSize:            10_000,
		dedupeSize:           50_000,
		rescoreWindow:        rescore.DefaultWindow,
		rescoreConcurrency:   8,
		chatLookback:         digest.DefaultChatLookback,
		weeklyDay:            schedule.DefaultWeeklyDay,
		digestConcurrency:    4,
		recipientConcurrency: 8,
		sendTimeout:          10 * time.Second,
		lastDigestAt:         make(map[string]time.Time),
		logger:               logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.build()
	return s
}

func (s *Service) build() {
	scheduler := schedule.New(schedule.WithWeeklyDay(s.weeklyDay))

	s.guard = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	s.rescorer = rescore.New(s.store, scoring.NewPolicy(),
		rescore.WithWindow(s.rescoreWindow),
		rescore.WithConcurrency(s.rescoreConcurrency),
	)

	collector := digest.NewCollector(s.store, scheduler, digest.WithChatLookback(s.chatLookback))
	aggOpts := []digest.AggregatorOption{
		digest.WithSendTimeout(s.sendTimeout),
		digest.WithRecipientConcurrency(s.recipientConcurrency),
		digest.WithGuard(s.guard),
	}
	if s.notificationTemplate != "" {
		aggOpts = append(aggOpts, digest.WithTemplateID(s.notificationTemplate))
	}
	if s.notificationSender != "" {
		aggOpts = append(aggOpts, digest.WithSender(s.notificationSender))
	}
	aggregator := digest.NewAggregator(s.notifier, s.store, aggOpts...)
	s.digests = digest.NewRunner(s.store, collector, aggregator, s.digestConcurrency)

	nlOpts := []newsletter.Option{
		newsletter.WithSendTimeout(s.sendTimeout),
		newsletter.WithQueue(s.queue),
		newsletter.WithGuard(s.guard),
	}
	if s.newsletterTemplate != "" {
		nlOpts = append(nlOpts, newsletter.WithTemplateID(s.newsletterTemplate))
	}
	if s.newsletterSender != "" {
		nlOpts = append(nlOpts, newsletter.WithSender(s.newsletterSender))
	}
	s.newsletter = newsletter.New(s.store, s.notifier, scheduler, nlOpts...)

	s.pool = workerpool.NewPool(s.workerCount, s.queue, workerpool.HandlerFunc(s.newsletter.Handle))

	recOpts := []activity.Option{activity.WithNow(s.clock.Now)}
	if s.counter != nil {
		recOpts = append(recOpts, activity.WithUnreadCounter(s.counter))
	}
	s.recorder = activity.New(s.store, recOpts...)

	s.inviter = invite.New(s.store, s.notifier,
		invite.WithTemplateID(s.invitationTemplate),
		invite.WithSender(s.invitationSender),
		invite.WithSendTimeout(s.sendTimeout),
		invite.WithNow(s.clock.Now),
	)
}

// Start launches the immediate-send worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.pool.Start(ctx)
	s.started = true
	metrics.UpdateQueueCapacity(s.queueSize)
	s.logger.Info(ctx, "service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
	)
	return nil
}

// Stop closes the queue, lets the workers drain it and waits for them up
// to ctx. The workers keep running after Start's context is cancelled.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	err := s.pool.Shutdown(ctx)
	s.logger.Info(ctx, "service stopped")
	return err
}

// RescorePosts runs one rescore pass at the clock's current time.
func (s *Service) RescorePosts(ctx context.Context) (rescore.Report, error) {
	now := s.clock.Now()
	report, err := s.rescorer.Rescore(ctx, now)
	if err != nil {
		return report, fmt.Errorf("rescore: %w", err)
	}

	s.mu.Lock()
	s.lastRescore = report
	s.lastRescoreAt = now
	s.mu.Unlock()
	return report, nil
}

// RunRescoreLoop rescores every interval until ctx is done. Failed passes
// are logged and retried on the next tick.
func (s *Service) RunRescoreLoop(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := s.RescorePosts(ctx); err != nil {
				s.logger.Error(ctx, "scheduled rescore failed", logger.Error(err))
			}
		}
	}
}

// RunDigest runs the reply and chat digest for cadence. Only hourly, daily
// and weekly cycles exist.
func (s *Service) RunDigest(ctx context.Context, cadence model.Cadence) (digest.RunReport, error) {
	var freq model.Frequency
	switch cadence {
	case model.CadenceHourly:
		freq = model.Hourly()
	case model.CadenceDaily:
		freq = model.Daily()
	case model.CadenceWeekly:
		freq = model.WeeklyUnset()
	default:
		return digest.RunReport{}, fmt.Errorf("%w: no digest cycle for %q", model.ErrInvalidFrequency, cadence)
	}

	now := s.clock.Now()
	report, err := s.digests.Run(ctx, freq, now)
	if err != nil {
		return report, fmt.Errorf("digest %s: %w", cadence, err)
	}

	s.mu.Lock()
	s.lastDigestAt[cadence.String()] = now
	s.mu.Unlock()
	return report, nil
}

// SendNewsletters sends every community digest due today.
func (s *Service) SendNewsletters(ctx context.Context) (newsletter.Report, error) {
	report, err := s.newsletter.SendDigests(ctx, s.clock.Now())
	if err != nil {
		return report, fmt.Errorf("newsletter: %w", err)
	}
	return report, nil
}

// PostCreated fans a new post out to immediate-frequency members. Jobs are
// only drained while the service is started.
func (s *Service) PostCreated(ctx context.Context, postID string) (int, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", postID, err)
	}
	n, err := s.newsletter.PostCreated(ctx, post)
	metrics.UpdateQueueSize(s.queue.Len(ctx))
	return n, err
}

// SendInvitations invites emails to the community named community.
func (s *Service) SendInvitations(ctx context.Context, community string, emails []string) (invite.Report, error) {
	report, err := s.inviter.Send(ctx, community, emails)
	if err != nil {
		return report, fmt.Errorf("invitations: %w", err)
	}
	return report, nil
}

// CommentCreated records reply notifications for a new comment.
func (s *Service) CommentCreated(ctx context.Context, commentID string) ([]*model.NotificationEvent, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("comment %s: %w", commentID, err)
	}
	return s.recorder.CommentCreated(ctx, comment)
}

// ObjectLiked records a like of a post or comment by actorID.
func (s *Service) ObjectLiked(ctx context.Context, kind model.EntityKind, targetID, actorID string) (*model.NotificationEvent, error) {
	var (
		target activity.Likeable
		err    error
	)
	switch kind {
	case model.KindPost:
		target, err = s.store.GetPost(ctx, targetID)
	case model.KindComment:
		target, err = s.store.GetComment(ctx, targetID)
	default:
		return nil, fmt.Errorf("%w: cannot like a %q", model.ErrInvalidEvent, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind, targetID, err)
	}
	return s.recorder.ObjectLiked(ctx, target, actorID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	queueLen := s.queue.Len(ctx)
	metrics.UpdateQueueSize(queueLen)

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.pool.Size(),
		"queueSize":   s.queueSize,
		"queueLength": queueLen,
		"dedupeSize":  s.dedupeSize,
		"inFlight":    s.pool.InFlight(),
		"claims":      s.guard.Size(),
	}
	if !s.lastRescoreAt.IsZero() {
		stats["lastRescoreAt"] = s.lastRescoreAt.UTC().Format(time.RFC3339)
		stats["lastRescore"] = map[string]any{
			"selected": s.lastRescore.Selected,
			"skipped":  s.lastRescore.Skipped,
			"updated":  s.lastRescore.Updated,
			"failed":   s.lastRescore.Failed,
		}
	}
	if len(s.lastDigestAt) > 0 {
		digests := make(map[string]string, len(s.lastDigestAt))
		for k, v := range s.lastDigestAt {
			digests[k] = v.UTC().Format(time.RFC3339)
		}
		stats["lastDigestAt"] = digests
	}
	if b, ok := s.notifier.(interface{ State() string }); ok && b.State() != "" {
		stats["notifierState"] = b.State()
	}
	return stats
}
