// Package invite emails community invitations.
package invite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
	"github.com/okian/agora/pkg/metrics"
)

// Defaults for the invitation email.
const (
	DefaultTemplateID  = "community-invitation"
	DefaultSender      = "invitations@comradery.io"
	defaultSendTimeout = 10 * time.Second
)

// Store is the persistence invitations need.
type Store interface {
	ListCommunities(ctx context.Context) ([]*model.Community, error)
	CreateInvitation(ctx context.Context, inv *model.Invitation) error
}

// Notifier delivers one templated email.
type Notifier interface {
	Send(ctx context.Context, email model.Email) error
}

// Report counts per-address outcomes of one Send call.
type Report struct {
	Sent    int
	Failed  int
	Invalid int
}

type recipient struct {
	Email string `validate:"required,email"`
}

// Inviter creates invitations and emails their links.
type Inviter struct {
	store       Store
	notifier    Notifier
	templateID  string
	sender      string
	sendTimeout time.Duration
	now         func() time.Time
	newCode     func() string
	validate    *validator.Validate
	logger      logger.Logger
}

// Option applies a configuration option to the Inviter.
type Option func(*Inviter)

// WithTemplateID sets the invitation template.
func WithTemplateID(id string) Option {
	return func(i *Inviter) {
		if id != "" {
			i.templateID = id
		}
	}
}

// WithSender sets the sender address.
func WithSender(addr string) Option {
	return func(i *Inviter) {
		if addr != "" {
			i.sender = addr
		}
	}
}

// WithSendTimeout bounds each Notifier call.
func WithSendTimeout(d time.Duration) Option {
	return func(i *Inviter) {
		if d > 0 {
			i.sendTimeout = d
		}
	}
}

// WithNow sets the time source.
func WithNow(now func() time.Time) Option {
	return func(i *Inviter) {
		if now != nil {
			i.now = now
		}
	}
}

// WithCodes sets the invite code generator.
func WithCodes(gen func() string) Option {
	return func(i *Inviter) {
		if gen != nil {
			i.newCode = gen
		}
	}
}

// New creates an Inviter.
func New(store Store, notifier Notifier, opts ...Option) *Inviter {
	i := &Inviter{
		store:       store,
		notifier:    notifier,
		templateID:  DefaultTemplateID,
		sender:      DefaultSender,
		sendTimeout: defaultSendTimeout,
		now:         time.Now,
		newCode:     uuid.NewString,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.Get().Named("invite"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Send invites every address in emails to the community with the given
// name or id. Each address gets its own invitation; a bad address or a
// failed delivery does not stop the others.
func (i *Inviter) Send(ctx context.Context, community string, emails []string) (Report, error) {
	var report Report
	c, err := i.community(ctx, community)
	if err != nil {
		return report, err
	}

	for _, addr := range emails {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("invitations interrupted: %w", err)
		}
		addr = strings.TrimSpace(addr)
		if err := i.validate.Struct(recipient{Email: addr}); err != nil {
			report.Invalid++
			metrics.RecordInvitation("invalid")
			i.logger.Warn(ctx, "skipping invalid address", logger.String("email", addr))
			continue
		}
		if err := i.invite(ctx, c, addr); err != nil {
			report.Failed++
			metrics.RecordInvitation("failed")
			i.logger.Warn(ctx, "invitation failed",
				logger.String("community_id", c.ID),
				logger.String("email", addr),
				logger.Error(err),
			)
			continue
		}
		report.Sent++
		metrics.RecordInvitation("sent")
	}
	return report, nil
}

func (i *Inviter) community(ctx context.Context, key string) (*model.Community, error) {
	all, err := i.store.ListCommunities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	for _, c := range all {
		if c.Name == key || c.ID == key {
			return c, nil
		}
	}
	return nil, fmt.Errorf("community %q: %w", key, model.ErrNotFound)
}

func (i *Inviter) invite(ctx context.Context, c *model.Community, addr string) error {
	inv := &model.Invitation{
		Code:        i.newCode(),
		CommunityID: c.ID,
		Email:       addr,
		CreatedAt:   i.now(),
	}
	if err := i.store.CreateInvitation(ctx, inv); err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, i.sendTimeout)
	defer cancel()
	return i.notifier.Send(sendCtx, model.Email{
		From:       fmt.Sprintf("%s Invitation <%s>", c.DisplayName(), i.sender),
		To:         addr,
		TemplateID: i.templateID,
		Model:      TemplateModel(c, inv),
	})
}

// TemplateModel renders the invitation template data. logo is nil when the
// community has none.
func TemplateModel(c *model.Community, inv *model.Invitation) map[string]any {
	var logo any
	if c.LogoURL != "" {
		logo = c.LogoURL
	}
	return map[string]any{
		"community_name": c.DisplayName(),
		"logo":           logo,
		"action_url":     inv.Link(c),
	}
}
