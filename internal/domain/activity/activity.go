// Package activity turns forum actions into per-recipient notification
// events.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
	"github.com/okian/agora/pkg/metrics"
)

// maxParentDepth guards against cycles in corrupted comment chains.
const maxParentDepth = 1000

// replyNamespace seeds reply event ids so a replayed comment maps onto the
// events it already produced.
var replyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("agora:reply-event")) //nolint:gochecknoglobals // fixed namespace

// ReplyEventID is the id of the kind event for recipientID about commentID.
func ReplyEventID(commentID, recipientID string, kind model.NotificationKind) string {
	return uuid.NewSHA1(replyNamespace, []byte(commentID+"/"+recipientID+"/"+string(kind))).String()
}

// Store is the persistence activity needs.
type Store interface {
	GetCommunity(ctx context.Context, id string) (*model.Community, error)
	GetPerson(ctx context.Context, id string) (*model.Person, error)
	GetPost(ctx context.Context, id string) (*model.Post, error)
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	CreateEvent(ctx context.Context, e *model.NotificationEvent) (bool, error)
	UpsertLikeEvent(ctx context.Context, e *model.NotificationEvent) (bool, error)
}

// Likeable is a scored entity with an owner to notify.
type Likeable interface {
	model.ScoredEntity
	Owner() string
}

// UnreadCounter tracks per-person unread notification counts.
type UnreadCounter interface {
	Incr(ctx context.Context, personID string) (int64, error)
}

type nopCounter struct{}

func (nopCounter) Incr(context.Context, string) (int64, error) { return 0, nil }

// Recorder creates notification events.
type Recorder struct {
	store   Store
	counter UnreadCounter
	now     func() time.Time
	logger  logger.Logger
}

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithUnreadCounter sets the unread counter. Without one, counts are not kept.
func WithUnreadCounter(c UnreadCounter) Option {
	return func(r *Recorder) {
		if c != nil {
			r.counter = c
		}
	}
}

// WithNow sets the time source.
func WithNow(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Recorder.
func New(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		counter: nopCounter{},
		now:     time.Now,
		logger:  logger.Get().Named("activity"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CommentCreated notifies every distinct owner up the parent chain with a
// ReplyToComment event, then the post owner with ReplyToPost unless they
// were already notified. The commenter is never notified. It returns the
// events of this comment, including ones an earlier call already created.
func (r *Recorder) CommentCreated(ctx context.Context, comment *model.Comment) ([]*model.NotificationEvent, error) {
	notified := map[string]bool{comment.OwnerID: true}
	var created []*model.NotificationEvent

	parentID := comment.ParentID
	for depth := 0; parentID != "" && depth < maxParentDepth; depth++ {
		parent, err := r.store.GetComment(ctx, parentID)
		if err != nil {
			return created, fmt.Errorf("parent comment %s: %w", parentID, err)
		}
		if !notified[parent.OwnerID] {
			e, err := r.reply(ctx, parent.OwnerID, model.ReplyToComment, comment)
			if err != nil {
				return created, err
			}
			created = append(created, e)
			notified[parent.OwnerID] = true
		}
		parentID = parent.ParentID
	}

	post, err := r.store.GetPost(ctx, comment.PostID)
	if err != nil {
		return created, fmt.Errorf("post %s: %w", comment.PostID, err)
	}
	if !notified[post.OwnerID] {
		e, err := r.reply(ctx, post.OwnerID, model.ReplyToPost, comment)
		if err != nil {
			return created, err
		}
		created = append(created, e)
	}
	return created, nil
}

func (r *Recorder) reply(ctx context.Context, recipientID string, kind model.NotificationKind, comment *model.Comment) (*model.NotificationEvent, error) {
	recipient, err := r.store.GetPerson(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("recipient %s: %w", recipientID, err)
	}
	community, err := r.store.GetCommunity(ctx, recipient.CommunityID)
	if err != nil {
		return nil, fmt.Errorf("community %s: %w", recipient.CommunityID, err)
	}
	freq := model.ResolveFrequency(recipient.NotificationFrequency, community.NotificationFrequency)

	e := &model.NotificationEvent{
		ID:              ReplyEventID(comment.ID, recipientID, kind),
		RecipientID:     recipientID,
		Kind:            kind,
		ActorID:         comment.OwnerID,
		TargetCommentID: comment.ID,
		CreatedAt:       r.now(),
		PendingEmail:    freq.Cadence != model.CadenceNever,
	}
	inserted, err := r.store.CreateEvent(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("create %s event: %w", kind, err)
	}
	if inserted {
		r.created(ctx, e)
	}
	return e, nil
}

// ObjectLiked records that actorID liked target. Self-likes produce no
// event. Repeated likes update the single existing event and mark it
// unread again. Likes never schedule an email.
//
// The actor must exist and belong to the owner's community; otherwise
// ErrNotFound or ErrInvalidEvent is returned and nothing is stored.
func (r *Recorder) ObjectLiked(ctx context.Context, target Likeable, actorID string) (*model.NotificationEvent, error) {
	ownerID := target.Owner()
	actor, err := r.store.GetPerson(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("actor %s: %w", actorID, err)
	}
	if ownerID == actorID {
		return nil, nil
	}
	owner, err := r.store.GetPerson(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("owner %s: %w", ownerID, err)
	}
	if actor.CommunityID != owner.CommunityID {
		return nil, fmt.Errorf("%w: actor %s is not a member of community %s",
			model.ErrInvalidEvent, actorID, owner.CommunityID)
	}

	e := &model.NotificationEvent{
		ID:          uuid.NewString(),
		RecipientID: ownerID,
		ActorID:     actorID,
		CreatedAt:   r.now(),
	}
	switch target.Kind() {
	case model.KindComment:
		e.Kind = model.LikeOnComment
		e.TargetCommentID = target.EntityID()
	default:
		e.Kind = model.LikeOnPost
		e.TargetPostID = target.EntityID()
	}

	inserted, err := r.store.UpsertLikeEvent(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("upsert like: %w", err)
	}
	if inserted {
		r.created(ctx, e)
	}
	return e, nil
}

// created counts a new event and bumps the recipient's unread count. A
// counter failure is logged only; the event itself is persisted.
func (r *Recorder) created(ctx context.Context, e *model.NotificationEvent) {
	metrics.RecordNotificationEvent(string(e.Kind))
	if _, err := r.counter.Incr(ctx, e.RecipientID); err != nil {
		r.logger.Warn(ctx, "unread counter update failed",
			logger.String("person_id", e.RecipientID),
			logger.Error(err),
		)
	}
}
