package model

import (
	"fmt"
	"time"
)

// NotificationKind classifies a notification event.
type NotificationKind string

// Notification kinds.
const (
	ReplyToComment NotificationKind = "reply_to_comment"
	ReplyToPost    NotificationKind = "reply_to_post"
	LikeOnPost     NotificationKind = "like_on_post"
	LikeOnComment  NotificationKind = "like_on_comment"
)

// IsReply reports whether k is one of the emailed kinds.
func (k NotificationKind) IsReply() bool {
	return k == ReplyToComment || k == ReplyToPost
}

// IsLike reports whether k is a like kind.
func (k NotificationKind) IsLike() bool {
	return k == LikeOnPost || k == LikeOnComment
}

// NotificationEvent is a per-recipient in-app notification.
//
// Reply kinds point TargetCommentID at the new reply. LikeOnComment points
// at the liked comment and LikeOnPost at the liked post via TargetPostID.
type NotificationEvent struct {
	ID              string
	RecipientID     string
	Kind            NotificationKind
	ActorID         string
	TargetPostID    string
	TargetCommentID string
	CreatedAt       time.Time
	Read            bool
	// PendingEmail stays true until the event is part of a delivered digest.
	PendingEmail bool
}

// Target returns the id of the single referenced entity.
func (e *NotificationEvent) Target() string {
	if e.TargetCommentID != "" {
		return e.TargetCommentID
	}
	return e.TargetPostID
}

// Validate enforces that exactly one target is set and that it matches Kind.
func (e *NotificationEvent) Validate() error {
	if e.RecipientID == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidEvent)
	}
	hasPost, hasComment := e.TargetPostID != "", e.TargetCommentID != ""
	if hasPost == hasComment {
		return fmt.Errorf("%w: exactly one target must be set", ErrInvalidEvent)
	}
	switch e.Kind {
	case ReplyToComment, ReplyToPost, LikeOnComment:
		if !hasComment {
			return fmt.Errorf("%w: %s needs a comment target", ErrInvalidEvent, e.Kind)
		}
	case LikeOnPost:
		if !hasPost {
			return fmt.Errorf("%w: %s needs a post target", ErrInvalidEvent, e.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	return nil
}

// LikeKey identifies the single like event allowed per recipient and target.
type LikeKey struct {
	RecipientID string
	Kind        NotificationKind
	TargetID    string
}
