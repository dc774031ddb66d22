package newsletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/agora/internal/domain/dedupe"
	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/internal/domain/schedule"
	"github.com/okian/agora/pkg/logger"
	"github.com/okian/agora/pkg/metrics"
)

const (
	defaultSender      = "digest@comradery.io"
	defaultSendTimeout = 10 * time.Second
	dayLayout          = "2006-01-02"
)

// Store is the persistence the newsletter reads.
type Store interface {
	ListCommunities(ctx context.Context) ([]*model.Community, error)
	GetCommunity(ctx context.Context, id string) (*model.Community, error)
	ListMembers(ctx context.Context, communityID string) ([]*model.Person, error)
	GetPerson(ctx context.Context, id string) (*model.Person, error)
	ListChannels(ctx context.Context, communityID string) ([]*model.Channel, error)
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	GetPost(ctx context.Context, id string) (*model.Post, error)
	ListCommunityPostsSince(ctx context.Context, communityID string, since time.Time) ([]*model.Post, error)
}

// Notifier delivers one templated email.
type Notifier interface {
	Send(ctx context.Context, email model.Email) error
}

// Scheduler decides whether a frequency fires today.
type Scheduler interface {
	ShouldRunToday(f model.Frequency, today time.Time) bool
}

// Enqueuer accepts immediate-delivery jobs without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, j model.DeliveryJob) bool
}

// Report summarises a newsletter cycle.
type Report struct {
	Communities int
	Sent        int
	Failed      int
	Skipped     int
}

// Newsletter composes and sends community digests.
type Newsletter struct {
	store       Store
	notifier    Notifier
	scheduler   Scheduler
	queue       Enqueuer
	guard       dedupe.Deduper
	templateID  string
	sender      string
	sendTimeout time.Duration
	logger      logger.Logger
}

// Option applies a configuration option to the Newsletter.
type Option func(*Newsletter)

// WithTemplateID sets the newsletter template id.
func WithTemplateID(id string) Option {
	return func(n *Newsletter) { n.templateID = id }
}

// WithSender sets the sender address.
func WithSender(addr string) Option {
	return func(n *Newsletter) {
		if addr != "" {
			n.sender = addr
		}
	}
}

// WithSendTimeout bounds each Notifier call.
func WithSendTimeout(d time.Duration) Option {
	return func(n *Newsletter) {
		if d > 0 {
			n.sendTimeout = d
		}
	}
}

// WithQueue sets where PostCreated enqueues immediate jobs.
func WithQueue(q Enqueuer) Option {
	return func(n *Newsletter) { n.queue = q }
}

// WithGuard sets the claim guard.
func WithGuard(d dedupe.Deduper) Option {
	return func(n *Newsletter) {
		if d != nil {
			n.guard = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Newsletter) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a Newsletter.
func New(store Store, notifier Notifier, scheduler Scheduler, opts ...Option) *Newsletter {
	n := &Newsletter{
		store:       store,
		notifier:    notifier,
		scheduler:   scheduler,
		sender:      defaultSender,
		sendTimeout: defaultSendTimeout,
		logger:      logger.Get().Named("newsletter"),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.guard == nil {
		n.guard = dedupe.NewInMemoryDeduper()
	}
	return n
}

type issueKey struct {
	communityID string
	cadence     model.Cadence
}

type issue struct {
	subject string
	model   map[string]any
}

// SendDigests sends today's newsletters. Members without a personal digest
// frequency follow their community's; members with one get their
// community's newsletter on their own schedule.
func (n *Newsletter) SendDigests(ctx context.Context, now time.Time) (Report, error) {
	communities, err := n.store.ListCommunities(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list communities: %w", err)
	}

	report := Report{Communities: len(communities)}
	issues := make(map[issueKey]*issue)
	for _, community := range communities {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("newsletter cycle interrupted: %w", err)
		}
		members, err := n.store.ListMembers(ctx, community.ID)
		if err != nil {
			n.logger.Error(ctx, "list members failed", logger.String("community_id", community.ID), logger.Error(err))
			continue
		}
		communityFreq := community.NewsletterFrequency()

		for _, person := range members {
			if person.Email == "" {
				continue
			}
			freq := communityFreq
			if person.DigestFrequency != nil {
				freq = model.ResolveFrequency(person.DigestFrequency, communityFreq)
			}
			if !n.scheduler.ShouldRunToday(freq, now) {
				continue
			}

			key := issueKey{community.ID, freq.Cadence}
			is, ok := issues[key]
			if !ok {
				is, err = n.compose(ctx, community, freq, now)
				if err != nil {
					n.logger.Error(ctx, "compose failed", logger.String("community_id", community.ID), logger.Error(err))
					continue
				}
				issues[key] = is
			}
			if is == nil {
				continue
			}

			claim := dedupe.Key("newsletter", community.ID, person.Email, freq.Cadence.String(), now.Format(dayLayout))
			switch n.send(ctx, claim, community, person.Email, is, freq.Cadence.String()) {
			case sendOK:
				report.Sent++
			case sendFailed:
				report.Failed++
			case sendSkipped:
				report.Skipped++
			}
		}
	}

	n.logger.Info(ctx, "newsletter cycle finished",
		logger.Int("communities", report.Communities),
		logger.Int("sent", report.Sent),
		logger.Int("failed", report.Failed),
		logger.Int("skipped", report.Skipped),
	)
	return report, nil
}

// compose returns nil when the community has no public posts in the window.
func (n *Newsletter) compose(ctx context.Context, community *model.Community, freq model.Frequency, now time.Time) (*issue, error) {
	days := lookbackDays(freq)
	posts, err := n.store.ListCommunityPostsSince(ctx, community.ID, now.AddDate(0, 0, -days))
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	channels, err := n.channels(ctx, community.ID)
	if err != nil {
		return nil, err
	}
	sections := Sections(posts, channels)
	if len(sections) == 0 {
		return nil, nil
	}
	subject := DigestSubject(community, freq)
	return &issue{
		subject: subject,
		model:   TemplateModel(community, subject, sections, n.authors(ctx, sections)),
	}, nil
}

func lookbackDays(f model.Frequency) int {
	if days := schedule.LookbackDays(f); days > 0 {
		return days
	}
	return 1
}

func (n *Newsletter) channels(ctx context.Context, communityID string) (map[string]*model.Channel, error) {
	list, err := n.store.ListChannels(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	out := make(map[string]*model.Channel, len(list))
	for _, c := range list {
		out[c.ID] = c
	}
	return out, nil
}

func (n *Newsletter) authors(ctx context.Context, sections []Section) map[string]string {
	out := make(map[string]string)
	for _, s := range sections {
		for _, p := range s.Posts {
			if _, ok := out[p.OwnerID]; ok {
				continue
			}
			person, err := n.store.GetPerson(ctx, p.OwnerID)
			if err != nil {
				metrics.RecordDataInconsistency("newsletter")
				n.logger.Warn(ctx, "post author missing", logger.String("post_id", p.ID), logger.Error(err))
				out[p.OwnerID] = ""
				continue
			}
			out[p.OwnerID] = person.Username
		}
	}
	return out
}

type sendOutcome int

const (
	sendOK sendOutcome = iota
	sendFailed
	sendSkipped
)

// send claims key for the delivery. The claim is kept on success so an
// overlapping run skips the recipient, and released on failure.
func (n *Newsletter) send(ctx context.Context, key string, community *model.Community, to string, is *issue, freq string) sendOutcome {
	if !n.guard.Claim(ctx, key) {
		metrics.RecordDuplicateJob()
		return sendSkipped
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()
	err := n.notifier.Send(sendCtx, model.Email{
		From:       fmt.Sprintf("%s Community Digest <%s>", community.DisplayName(), n.sender),
		To:         to,
		TemplateID: n.templateID,
		Model:      is.model,
	})
	if err != nil {
		n.guard.Release(ctx, key)
		metrics.RecordDigestFailed("newsletter", freq)
		n.logger.Warn(ctx, "newsletter delivery failed",
			logger.String("community_id", community.ID),
			logger.String("email", to),
			logger.Error(err),
		)
		return sendFailed
	}
	metrics.RecordDigestSent("newsletter", freq)
	return sendOK
}

// ErrQueueFull is returned by PostCreated when jobs could not be enqueued.
var ErrQueueFull = errors.New("delivery queue full")

// PostCreated enqueues one immediate job per member who can read post,
// when its community sends newsletters immediately. It returns the number
// of jobs enqueued.
func (n *Newsletter) PostCreated(ctx context.Context, post *model.Post) (int, error) {
	community, err := n.store.GetCommunity(ctx, post.CommunityID)
	if err != nil {
		return 0, fmt.Errorf("community of post %s: %w", post.ID, err)
	}
	if community.DigestFrequency.Cadence != model.CadenceImmediate {
		return 0, nil
	}
	if n.queue == nil {
		return 0, fmt.Errorf("%w: no queue configured", ErrQueueFull)
	}
	channel, err := n.store.GetChannel(ctx, post.ChannelID)
	if err != nil {
		return 0, fmt.Errorf("channel of post %s: %w", post.ID, err)
	}
	members, err := n.store.ListMembers(ctx, community.ID)
	if err != nil {
		return 0, fmt.Errorf("list members: %w", err)
	}

	var enqueued, rejected int
	for _, person := range members {
		if person.Email == "" || !channel.CanAccess(person.ID) {
			continue
		}
		job := model.DeliveryJob{
			ID:          uuid.NewString(),
			CommunityID: community.ID,
			PostID:      post.ID,
			RecipientID: person.ID,
			EnqueuedAt:  time.Now(),
		}
		if !n.guard.Claim(ctx, job.Key()) {
			metrics.RecordDuplicateJob()
			continue
		}
		if !n.queue.Enqueue(ctx, job) {
			n.guard.Release(ctx, job.Key())
			rejected++
			continue
		}
		enqueued++
	}

	if rejected > 0 {
		n.logger.Warn(ctx, "immediate jobs rejected",
			logger.String("post_id", post.ID),
			logger.Int("rejected", rejected),
		)
		return enqueued, fmt.Errorf("%w: %d of %d jobs rejected", ErrQueueFull, rejected, rejected+enqueued)
	}
	return enqueued, nil
}

// Handle sends one immediate post email. It is the worker pool's handler.
func (n *Newsletter) Handle(ctx context.Context, job model.DeliveryJob) error {
	post, err := n.store.GetPost(ctx, job.PostID)
	if err != nil {
		return fmt.Errorf("load post: %w", err)
	}
	community, err := n.store.GetCommunity(ctx, post.CommunityID)
	if err != nil {
		return fmt.Errorf("load community: %w", err)
	}
	channel, err := n.store.GetChannel(ctx, post.ChannelID)
	if err != nil {
		return fmt.Errorf("load channel: %w", err)
	}
	recipient, err := n.store.GetPerson(ctx, job.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if recipient.Email == "" || !channel.CanAccess(recipient.ID) {
		return nil
	}

	authors := make(map[string]string, 1)
	if owner, err := n.store.GetPerson(ctx, post.OwnerID); err == nil {
		authors[post.OwnerID] = owner.Username
	}
	subject := community.DisplayName() + ": " + post.Title
	sections := []Section{{Channel: channel, Posts: []*model.Post{post}}}

	sendCtx, cancel := context.WithTimeout(ctx, n.sendTimeout)
	defer cancel()
	err = n.notifier.Send(sendCtx, model.Email{
		From:       fmt.Sprintf("%s <%s>", community.DisplayName(), n.sender),
		To:         recipient.Email,
		TemplateID: n.templateID,
		Model:      TemplateModel(community, subject, sections, authors),
	})
	if err != nil {
		n.guard.Release(ctx, job.Key())
		metrics.RecordDigestFailed("immediate", model.CadenceImmediate.String())
		return fmt.Errorf("send immediate post %s to %s: %w", post.ID, recipient.ID, err)
	}
	metrics.RecordDigestSent("immediate", model.CadenceImmediate.String())
	return nil
}
