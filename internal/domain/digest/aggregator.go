package digest

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/agora/internal/domain/dedupe"
	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
	"github.com/okian/agora/pkg/metrics"
)

const (
	defaultSendTimeout = 10 * time.Second
	defaultMarkTimeout = 10 * time.Second
	defaultConcurrency = 4
)

// Notifier delivers one templated email.
type Notifier interface {
	Send(ctx context.Context, email model.Email) error
}

// MarkStore records delivered state.
type MarkStore interface {
	MarkEmailed(ctx context.Context, eventIDs []string) error
	AdvanceNotifiedCursor(ctx context.Context, personID, roomID string, msg model.Message) error
}

// Payload is one recipient's digest.
type Payload struct {
	Community     *model.Community
	Email         string
	Subject       string
	Notifications []NotificationEntry
	Chats         []ChatEntry
}

// TemplateModel renders the flat mapping handed to the Notifier.
func (p *Payload) TemplateModel() map[string]any {
	domain := p.Community.Domain()

	notifications := make([]map[string]any, 0, len(p.Notifications))
	for _, n := range p.Notifications {
		postLink := n.Post.Link(domain)
		notifications = append(notifications, map[string]any{
			"author":      n.Author.Username,
			"author_link": n.Author.Link(domain),
			"post_link":   postLink,
			"post_title":  n.Post.Title,
			"link":        postLink,
			"content":     n.Comment.Content,
		})
	}

	chats := make([]map[string]any, 0, len(p.Chats))
	for _, c := range p.Chats {
		chats = append(chats, map[string]any{
			"room_name": c.Room.DescriptiveName(c.ViewerID),
			"room_link": c.Room.Link(domain),
		})
	}

	var logo any
	if p.Community.LogoURL != "" {
		logo = p.Community.LogoURL
	}

	return map[string]any{
		"community":     p.Community.DisplayName(),
		"subject":       p.Subject,
		"logo":          logo,
		"domain":        domain,
		"notifications": notifications,
		"chats":         chats,
	}
}

// Subject picks the digest subject: the first notification's post title,
// else the first chat's room name.
func Subject(community *model.Community, acc *Accumulator) (string, error) {
	prefix := "[" + community.DisplayName() + "] "
	switch {
	case len(acc.Notifications) > 0:
		return prefix + "New Comment on " + acc.Notifications[0].Post.Title, nil
	case len(acc.Chats) > 0:
		c := acc.Chats[0]
		return prefix + "New Messages from " + c.Room.DescriptiveName(c.ViewerID), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrEmptyDigest, acc.Email)
	}
}

// DeliveryReport counts per-recipient outcomes of one Deliver call.
type DeliveryReport struct {
	Sent int
	// Failed recipients keep their pending state for the next cycle.
	Failed int
	// Skipped recipients were held by an overlapping run or cut off by
	// cancellation.
	Skipped int
	// MarkFailed recipients got the email but their state was not fully
	// updated; they may receive the same items again.
	MarkFailed int
}

// Add accumulates other into r.
func (r *DeliveryReport) Add(other DeliveryReport) {
	r.Sent += other.Sent
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	r.MarkFailed += other.MarkFailed
}

// Aggregator turns accumulators into payloads and delivers them.
type Aggregator struct {
	notifier    Notifier
	store       MarkStore
	guard       dedupe.Deduper
	templateID  string
	sender      string
	sendTimeout time.Duration
	markTimeout time.Duration
	concurrency int
	logger      logger.Logger
}

// AggregatorOption applies a configuration option to the Aggregator.
type AggregatorOption func(*Aggregator)

// WithTemplateID sets the notification template id.
func WithTemplateID(id string) AggregatorOption {
	return func(a *Aggregator) { a.templateID = id }
}

// WithSender sets the sender address. The community display name is
// prepended as the sender name.
func WithSender(addr string) AggregatorOption {
	return func(a *Aggregator) { a.sender = addr }
}

// WithSendTimeout bounds each Notifier call.
func WithSendTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.sendTimeout = d
		}
	}
}

// WithRecipientConcurrency bounds parallel deliveries within a community.
func WithRecipientConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithGuard shares a claim guard between aggregators of overlapping runs.
func WithGuard(d dedupe.Deduper) AggregatorOption {
	return func(a *Aggregator) {
		if d != nil {
			a.guard = d
		}
	}
}

// WithAggregatorLogger sets the logger.
func WithAggregatorLogger(l logger.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator creates an Aggregator.
func NewAggregator(notifier Notifier, store MarkStore, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		notifier:    notifier,
		store:       store,
		sender:      "notifications@comradery.io",
		sendTimeout: defaultSendTimeout,
		markTimeout: defaultMarkTimeout,
		concurrency: defaultConcurrency,
		logger:      logger.Get().Named("digest.aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.guard == nil {
		a.guard = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
	}
	return a
}

// Aggregate builds one payload per email with at least one entry, ordered
// by email. Empty accumulators are dropped and logged.
func (a *Aggregator) Aggregate(ctx context.Context, community *model.Community, accs map[string]*Accumulator) []Payload {
	keys := make([]string, 0, len(accs))
	for k := range accs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payloads := make([]Payload, 0, len(keys))
	for _, k := range keys {
		acc := accs[k]
		subject, err := Subject(community, acc)
		if err != nil {
			a.logger.Warn(ctx, "dropping recipient", logger.String("community_id", community.ID), logger.Error(err))
			continue
		}
		payloads = append(payloads, Payload{
			Community:     community,
			Email:         acc.Email,
			Subject:       subject,
			Notifications: acc.Notifications,
			Chats:         acc.Chats,
		})
	}
	return payloads
}

// Deliver sends every payload and marks state for the successful ones.
// One recipient's failure never stops the others. Cancellation stops
// starting new recipients; finished ones stay marked.
func (a *Aggregator) Deliver(ctx context.Context, frequency model.Frequency, payloads []Payload) DeliveryReport {
	var sent, failed, skipped, markFailed atomic.Int64
	freq := frequency.Cadence.String()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range payloads {
		p := &payloads[i]
		if gctx.Err() != nil {
			skipped.Add(int64(len(payloads) - i))
			break
		}
		g.Go(func() error {
			switch a.deliverOne(gctx, freq, p) {
			case outcomeSent:
				sent.Add(1)
			case outcomeMarkFailed:
				sent.Add(1)
				markFailed.Add(1)
			case outcomeFailed:
				failed.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return DeliveryReport{
		Sent:       int(sent.Load()),
		Failed:     int(failed.Load()),
		Skipped:    int(skipped.Load()),
		MarkFailed: int(markFailed.Load()),
	}
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeMarkFailed
)

func (a *Aggregator) deliverOne(ctx context.Context, freq string, p *Payload) outcome {
	key := dedupe.Key("digest", p.Community.ID, p.Email)
	if !a.guard.Claim(ctx, key) {
		metrics.RecordDuplicateJob()
		a.logger.Debug(ctx, "recipient held by another run", logger.String("email", p.Email))
		return outcomeSkipped
	}
	defer a.guard.Release(ctx, key)

	if ctx.Err() != nil {
		return outcomeSkipped
	}

	email := model.Email{
		From:       fmt.Sprintf("%s Notifications <%s>", p.Community.DisplayName(), a.sender),
		To:         p.Email,
		TemplateID: a.templateID,
		Model:      p.TemplateModel(),
	}

	sendCtx, cancel := context.WithTimeout(ctx, a.sendTimeout)
	err := a.notifier.Send(sendCtx, email)
	cancel()
	if err != nil {
		metrics.RecordDigestFailed("notification", freq)
		a.logger.Warn(ctx, "digest delivery failed",
			logger.String("community_id", p.Community.ID),
			logger.String("email", p.Email),
			logger.Error(err),
		)
		return outcomeFailed
	}
	metrics.RecordDigestSent("notification", freq)
	metrics.RecordDigestItems("notification", len(p.Notifications))
	metrics.RecordDigestItems("chat", len(p.Chats))

	// The email is out; marking must not be cut short by the run's cancellation.
	markCtx, markCancel := context.WithTimeout(context.WithoutCancel(ctx), a.markTimeout)
	defer markCancel()
	if err := a.mark(markCtx, p); err != nil {
		a.logger.Error(ctx, "digest sent but state not marked",
			logger.String("community_id", p.Community.ID),
			logger.String("email", p.Email),
			logger.Error(err),
		)
		return outcomeMarkFailed
	}
	return outcomeSent
}

func (a *Aggregator) mark(ctx context.Context, p *Payload) error {
	ids := make([]string, 0, len(p.Notifications))
	for _, n := range p.Notifications {
		ids = append(ids, n.EventID)
	}
	if err := a.store.MarkEmailed(ctx, ids); err != nil {
		return fmt.Errorf("mark events: %w", err)
	}
	for _, c := range p.Chats {
		if err := a.store.AdvanceNotifiedCursor(ctx, c.ViewerID, c.Room.ID, c.Latest); err != nil {
			return fmt.Errorf("advance cursor %s: %w", c.Room.ID, err)
		}
	}
	return nil
}
