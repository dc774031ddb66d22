// Package digest batches pending reply notifications and unread direct
// messages into one email per recipient per cycle.
package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
	"github.com/okian/agora/pkg/metrics"
)

// DefaultChatLookback bounds how old a direct room's latest message may be.
const DefaultChatLookback = 32 * 24 * time.Hour

// Store is the read side the collector needs.
type Store interface {
	ListMembers(ctx context.Context, communityID string) ([]*model.Person, error)
	GetPerson(ctx context.Context, id string) (*model.Person, error)
	GetPost(ctx context.Context, id string) (*model.Post, error)
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	PendingNotifications(ctx context.Context, personID string) ([]*model.NotificationEvent, error)
	DirectRoomsFor(ctx context.Context, personID string) ([]*model.ChatRoom, error)
	GetCursor(ctx context.Context, personID, roomID string) (model.ChatReadCursor, error)
}

// Scheduler decides whether a resolved frequency fires today.
type Scheduler interface {
	ShouldRunToday(f model.Frequency, today time.Time) bool
}

// NotificationEntry is one resolved reply event.
type NotificationEntry struct {
	EventID string
	Kind    model.NotificationKind
	Author  *model.Person
	Post    *model.Post
	Comment *model.Comment
}

// ChatEntry is one direct room with messages the recipient has not seen.
type ChatEntry struct {
	// ViewerID is the recipient's person id, used to name unnamed rooms.
	ViewerID string
	Room     *model.ChatRoom
	Latest   model.Message
}

// Pending is what one person has waiting for a cycle.
type Pending struct {
	Chats         []ChatEntry
	Notifications []NotificationEntry
}

// Empty reports whether nothing is pending.
func (p Pending) Empty() bool {
	return len(p.Chats) == 0 && len(p.Notifications) == 0
}

// Accumulator gathers everything addressed to one email in a cycle.
type Accumulator struct {
	Email string
	Pending
}

// Collector gathers pending events per person.
type Collector struct {
	store        Store
	scheduler    Scheduler
	chatLookback time.Duration
	logger       logger.Logger
}

// CollectorOption applies a configuration option to the Collector.
type CollectorOption func(*Collector)

// WithChatLookback overrides DefaultChatLookback.
func WithChatLookback(d time.Duration) CollectorOption {
	return func(c *Collector) {
		if d > 0 {
			c.chatLookback = d
		}
	}
}

// WithCollectorLogger sets the logger.
func WithCollectorLogger(l logger.Logger) CollectorOption {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCollector creates a Collector.
func NewCollector(store Store, scheduler Scheduler, opts ...CollectorOption) *Collector {
	c := &Collector{
		store:        store,
		scheduler:    scheduler,
		chatLookback: DefaultChatLookback,
		logger:       logger.Get().Named("digest.collector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Eligible reports whether person takes part in a frequency cycle at all:
// the resolved notification frequency must match and not be Never, and the
// person needs an email address.
func Eligible(community *model.Community, person *model.Person, frequency model.Frequency) bool {
	if person.Email == "" {
		return false
	}
	resolved := model.ResolveFrequency(person.NotificationFrequency, community.NotificationFrequency)
	return resolved.Cadence != model.CadenceNever && resolved.Matches(frequency)
}

// PendingEvents returns person's pending reply notifications and unseen
// direct rooms for a frequency cycle. Ineligible people get an empty
// result. Events that reference deleted content are skipped and counted.
func (c *Collector) PendingEvents(ctx context.Context, community *model.Community, person *model.Person, frequency model.Frequency, now time.Time) (Pending, error) {
	if !Eligible(community, person, frequency) {
		return Pending{}, nil
	}

	notifications, err := c.notifications(ctx, person)
	if err != nil {
		return Pending{}, err
	}
	chats, err := c.chats(ctx, person, now)
	if err != nil {
		return Pending{}, err
	}
	return Pending{Chats: chats, Notifications: notifications}, nil
}

func (c *Collector) notifications(ctx context.Context, person *model.Person) ([]NotificationEntry, error) {
	events, err := c.store.PendingNotifications(ctx, person.ID)
	if err != nil {
		return nil, fmt.Errorf("pending notifications for %s: %w", person.ID, err)
	}

	var out []NotificationEntry
	for _, e := range events {
		if !e.Kind.IsReply() || !e.PendingEmail || e.Read {
			continue
		}
		entry, err := c.resolve(ctx, e)
		if errors.Is(err, ErrDataInconsistency) {
			metrics.RecordDataInconsistency("collector")
			c.logger.Warn(ctx, "skipping notification",
				logger.String("event_id", e.ID),
				logger.String("recipient_id", person.ID),
				logger.Error(err),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// resolve loads what a reply entry renders. A missing row is a data
// inconsistency; any other store failure is returned as is.
func (c *Collector) resolve(ctx context.Context, e *model.NotificationEvent) (NotificationEntry, error) {
	if e.TargetCommentID == "" {
		return NotificationEntry{}, fmt.Errorf("%w: event %s has no comment target", ErrDataInconsistency, e.ID)
	}
	comment, err := c.store.GetComment(ctx, e.TargetCommentID)
	if err != nil {
		return NotificationEntry{}, inconsistency(err, "comment", e.TargetCommentID)
	}
	post, err := c.store.GetPost(ctx, comment.PostID)
	if err != nil {
		return NotificationEntry{}, inconsistency(err, "post", comment.PostID)
	}
	actorID := e.ActorID
	if actorID == "" {
		actorID = comment.OwnerID
	}
	author, err := c.store.GetPerson(ctx, actorID)
	if err != nil {
		return NotificationEntry{}, inconsistency(err, "person", actorID)
	}
	return NotificationEntry{EventID: e.ID, Kind: e.Kind, Author: author, Post: post, Comment: comment}, nil
}

func inconsistency(err error, kind, id string) error {
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%w: %s %s missing", ErrDataInconsistency, kind, id)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

func (c *Collector) chats(ctx context.Context, person *model.Person, now time.Time) ([]ChatEntry, error) {
	rooms, err := c.store.DirectRoomsFor(ctx, person.ID)
	if err != nil {
		return nil, fmt.Errorf("direct rooms for %s: %w", person.ID, err)
	}

	cutoff := now.Add(-c.chatLookback)
	var out []ChatEntry
	for _, room := range rooms {
		latest := room.LatestMessage
		if room.Type != model.RoomTypeDirect || latest == nil {
			continue
		}
		if latest.Posted.Before(cutoff) || latest.SenderID == person.ID {
			continue
		}
		cursor, err := c.store.GetCursor(ctx, person.ID, room.ID)
		if err != nil {
			return nil, fmt.Errorf("cursor %s/%s: %w", person.ID, room.ID, err)
		}
		if cursor.Covers(latest.ID) {
			continue
		}
		out = append(out, ChatEntry{ViewerID: person.ID, Room: room, Latest: *latest})
	}
	return out, nil
}

// Collect gathers every member's pending items for one community and one
// frequency cycle, keyed by lower-cased email. Members whose resolved
// weekly day is not today are left out.
func (c *Collector) Collect(ctx context.Context, community *model.Community, frequency model.Frequency, now time.Time) (map[string]*Accumulator, error) {
	members, err := c.store.ListMembers(ctx, community.ID)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", community.ID, err)
	}

	out := make(map[string]*Accumulator)
	for _, person := range members {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !Eligible(community, person, frequency) {
			continue
		}
		resolved := model.ResolveFrequency(person.NotificationFrequency, community.NotificationFrequency)
		if !c.scheduler.ShouldRunToday(resolved, now) {
			continue
		}

		pending, err := c.PendingEvents(ctx, community, person, frequency, now)
		if err != nil {
			c.logger.Error(ctx, "collect failed for person",
				logger.String("community_id", community.ID),
				logger.String("person_id", person.ID),
				logger.Error(err),
			)
			continue
		}
		if pending.Empty() {
			continue
		}

		key := strings.ToLower(person.Email)
		acc, ok := out[key]
		if !ok {
			acc = &Accumulator{Email: person.Email}
			out[key] = acc
		}
		acc.Chats = append(acc.Chats, pending.Chats...)
		acc.Notifications = append(acc.Notifications, pending.Notifications...)
	}
	return out, nil
}
