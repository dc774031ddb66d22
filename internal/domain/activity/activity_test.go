package activity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/agora/internal/adapters/repository"
	"github.com/okian/agora/internal/domain/activity"
	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type countingCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (c *countingCounter) Incr(_ context.Context, personID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.counts[personID]++
	return c.counts[personID], nil
}

func TestCommentCreated(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given a thread of nested comments", t, func() {
		_ = logger.Init()
		store := repository.NewMemStore()
		store.PutCommunity(&model.Community{ID: "c1", Name: "gophers", NotificationFrequency: model.Daily()})
		never := model.Never()
		for _, id := range []string{"olga", "pete", "quinn"} {
			store.PutPerson(&model.Person{ID: id, CommunityID: "c1", Username: id, Email: id + "@x"})
		}
		store.PutPerson(&model.Person{ID: "mute", CommunityID: "c1", Username: "mute", NotificationFrequency: &never})
		store.PutPost(&model.Post{ID: "p1", CommunityID: "c1", OwnerID: "olga", CreatedAt: now})
		store.PutComment(&model.Comment{ID: "a", PostID: "p1", OwnerID: "pete"})
		store.PutComment(&model.Comment{ID: "b", PostID: "p1", ParentID: "a", OwnerID: "olga"})
		store.PutComment(&model.Comment{ID: "c", PostID: "p1", ParentID: "b", OwnerID: "pete"})

		counter := &countingCounter{counts: map[string]int64{}}
		rec := activity.New(store, activity.WithUnreadCounter(counter), activity.WithNow(func() time.Time { return now }))

		Convey("When quinn replies deep in the thread", func() {
			reply := &model.Comment{ID: "d", PostID: "p1", ParentID: "c", OwnerID: "quinn"}
			store.PutComment(reply)
			events, err := rec.CommentCreated(ctx, reply)

			Convey("Then each distinct ancestor owner is notified once and the post owner is not repeated", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 2)
				So(events[0].RecipientID, ShouldEqual, "pete")
				So(events[0].Kind, ShouldEqual, model.ReplyToComment)
				So(events[1].RecipientID, ShouldEqual, "olga")
				So(events[1].Kind, ShouldEqual, model.ReplyToComment)
				So(events[0].TargetCommentID, ShouldEqual, "d")
				So(events[0].PendingEmail, ShouldBeTrue)
				So(counter.counts["pete"], ShouldEqual, 1)
				So(counter.counts["olga"], ShouldEqual, 1)
			})
		})

		Convey("When pete replies directly to the post", func() {
			reply := &model.Comment{ID: "e", PostID: "p1", OwnerID: "pete"}
			events, err := rec.CommentCreated(ctx, reply)

			Convey("Then the post owner gets a ReplyToPost event", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 1)
				So(events[0].RecipientID, ShouldEqual, "olga")
				So(events[0].Kind, ShouldEqual, model.ReplyToPost)
			})
		})

		Convey("When the post owner comments on their own post", func() {
			events, err := rec.CommentCreated(ctx, &model.Comment{ID: "f", PostID: "p1", OwnerID: "olga"})

			Convey("Then nobody is notified", func() {
				So(err, ShouldBeNil)
				So(events, ShouldBeEmpty)
			})
		})

		Convey("When the recipient opted out of email", func() {
			store.PutComment(&model.Comment{ID: "m", PostID: "p1", OwnerID: "mute"})
			events, err := rec.CommentCreated(ctx, &model.Comment{ID: "g", PostID: "p1", ParentID: "m", OwnerID: "quinn"})

			Convey("Then the event exists but is not pending email", func() {
				So(err, ShouldBeNil)
				So(events[0].RecipientID, ShouldEqual, "mute")
				So(events[0].PendingEmail, ShouldBeFalse)
			})
		})

		Convey("When the same comment is reported twice", func() {
			reply := &model.Comment{ID: "r", PostID: "p1", OwnerID: "quinn"}
			first, err := rec.CommentCreated(ctx, reply)
			So(err, ShouldBeNil)
			again, err := rec.CommentCreated(ctx, reply)

			Convey("Then the recipient keeps a single event and one unread count", func() {
				So(err, ShouldBeNil)
				So(len(again), ShouldEqual, 1)
				So(again[0].ID, ShouldEqual, first[0].ID)
				So(again[0].ID, ShouldEqual, activity.ReplyEventID("r", "olga", model.ReplyToPost))
				So(len(store.ListEvents(ctx, "olga")), ShouldEqual, 1)
				So(counter.counts["olga"], ShouldEqual, 1)
			})
		})

		Convey("When the unread counter is down", func() {
			counter.err = errors.New("redis unavailable")
			events, err := rec.CommentCreated(ctx, &model.Comment{ID: "h", PostID: "p1", OwnerID: "quinn"})

			Convey("Then the event is still recorded", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 1)
				So(len(store.ListEvents(ctx, "olga")), ShouldEqual, 1)
			})
		})
	})
}

func TestObjectLiked(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given a post and its owner", t, func() {
		_ = logger.Init()
		store := repository.NewMemStore()
		for _, id := range []string{"olga", "pete", "quinn"} {
			store.PutPerson(&model.Person{ID: id, CommunityID: "c1", Username: id})
		}
		store.PutPerson(&model.Person{ID: "stranger", CommunityID: "c2", Username: "stranger"})
		post := &model.Post{ID: "p1", CommunityID: "c1", OwnerID: "olga"}
		store.PutPost(post)
		counter := &countingCounter{counts: map[string]int64{}}
		rec := activity.New(store, activity.WithUnreadCounter(counter), activity.WithNow(func() time.Time { return now }))

		Convey("When the owner likes their own post", func() {
			e, err := rec.ObjectLiked(ctx, post, "olga")

			Convey("Then no event is created", func() {
				So(err, ShouldBeNil)
				So(e, ShouldBeNil)
				So(store.ListEvents(ctx, "olga"), ShouldBeEmpty)
			})
		})

		Convey("When two people like the post in turn", func() {
			_, err := rec.ObjectLiked(ctx, post, "pete")
			So(err, ShouldBeNil)
			_, err = rec.ObjectLiked(ctx, post, "quinn")
			So(err, ShouldBeNil)

			Convey("Then a single like event remains, naming the latest actor", func() {
				events := store.ListEvents(ctx, "olga")
				So(len(events), ShouldEqual, 1)
				So(events[0].Kind, ShouldEqual, model.LikeOnPost)
				So(events[0].ActorID, ShouldEqual, "quinn")
				So(events[0].PendingEmail, ShouldBeFalse)
				So(counter.counts["olga"], ShouldEqual, 1)
			})
		})

		Convey("When a comment is liked", func() {
			comment := &model.Comment{ID: "c1", PostID: "p1", OwnerID: "pete"}
			e, err := rec.ObjectLiked(ctx, comment, "olga")

			Convey("Then the event targets the comment", func() {
				So(err, ShouldBeNil)
				So(e.Kind, ShouldEqual, model.LikeOnComment)
				So(e.TargetCommentID, ShouldEqual, "c1")
				So(e.TargetPostID, ShouldEqual, "")
			})
		})

		Convey("When an unknown person likes the post", func() {
			e, err := rec.ObjectLiked(ctx, post, "ghost")

			Convey("Then it is not found and nothing is stored", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				So(e, ShouldBeNil)
				So(store.ListEvents(ctx, "olga"), ShouldBeEmpty)
			})
		})

		Convey("When a member of another community likes the post", func() {
			e, err := rec.ObjectLiked(ctx, post, "stranger")

			Convey("Then the like is rejected", func() {
				So(errors.Is(err, model.ErrInvalidEvent), ShouldBeTrue)
				So(e, ShouldBeNil)
				So(store.ListEvents(ctx, "olga"), ShouldBeEmpty)
			})
		})
	})
}
