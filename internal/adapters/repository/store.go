// Package repository holds the persistence adapters for communities,
// content, notification events and chat cursors.
package repository

import (
	"context"
	"time"

	"github.com/okian/agora/internal/domain/model"
)

// Store is the full persistence surface. Domain packages declare the
// subsets they consume; MemStore and PostgresStore implement all of it.
//
// Every write is idempotent per key so overlapping runs may retry freely.
type Store interface {
	ListCommunities(ctx context.Context) ([]*model.Community, error)
	// GetCommunity returns ErrNotFound for unknown ids. Same for the other getters.
	GetCommunity(ctx context.Context, id string) (*model.Community, error)
	ListMembers(ctx context.Context, communityID string) ([]*model.Person, error)
	GetPerson(ctx context.Context, id string) (*model.Person, error)
	ListChannels(ctx context.Context, communityID string) ([]*model.Channel, error)
	GetChannel(ctx context.Context, id string) (*model.Channel, error)

	GetPost(ctx context.Context, id string) (*model.Post, error)
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	// ListPostsSince returns posts created at or after since, across all
	// communities.
	ListPostsSince(ctx context.Context, since time.Time) ([]*model.Post, error)
	ListCommunityPostsSince(ctx context.Context, communityID string, since time.Time) ([]*model.Post, error)
	ListCommentsSince(ctx context.Context, since time.Time) ([]*model.Comment, error)
	SavePostScore(ctx context.Context, postID string, score float64) error
	// FreezeCommentScore writes the score and marks the comment rescored.
	// A comment that is already frozen keeps its score.
	FreezeCommentScore(ctx context.Context, commentID string, score float64) error

	// CreateEvent inserts e unless an event with its id exists. It reports
	// whether e was inserted.
	CreateEvent(ctx context.Context, e *model.NotificationEvent) (bool, error)
	// UpsertLikeEvent keeps a single like event per (recipient, kind, target).
	// It reports whether a new event was created.
	UpsertLikeEvent(ctx context.Context, e *model.NotificationEvent) (bool, error)
	// PendingNotifications returns the recipient's events with PendingEmail
	// set and Read unset, oldest first.
	PendingNotifications(ctx context.Context, personID string) ([]*model.NotificationEvent, error)
	MarkEmailed(ctx context.Context, eventIDs []string) error

	// DirectRoomsFor returns the direct rooms personID is a member of.
	DirectRoomsFor(ctx context.Context, personID string) ([]*model.ChatRoom, error)
	// GetCursor returns the zero cursor when none exists yet.
	GetCursor(ctx context.Context, personID, roomID string) (model.ChatReadCursor, error)
	AdvanceNotifiedCursor(ctx context.Context, personID, roomID string, msg model.Message) error

	// CreateInvitation stores a new invitation; codes are unique.
	CreateInvitation(ctx context.Context, inv *model.Invitation) error

	Close()
}
