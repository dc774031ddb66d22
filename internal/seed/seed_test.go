package seed_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/agora/internal/adapters/repository"
	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/internal/seed"
	"github.com/okian/agora/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type countingReactor struct {
	mu       sync.Mutex
	comments int
	likes    int
}

func (c *countingReactor) CommentCreated(context.Context, string) ([]*model.NotificationEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.comments++
	return []*model.NotificationEvent{{}}, nil
}

func (c *countingReactor) ObjectLiked(context.Context, model.EntityKind, string, string) (*model.NotificationEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.likes++
	return &model.NotificationEvent{}, nil
}

func TestGenerate(t *testing.T) {
	Convey("Given a small seed configuration", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		reactor := &countingReactor{}
		cfg := seed.Config{
			Communities:         3,
			MembersPerCommunity: 4,
			PostsPerCommunity:   5,
			CommentsPerPost:     2,
			Seed:                7,
			Now:                 time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC),
		}

		stats, err := seed.Generate(ctx, cfg, store, reactor)

		Convey("Then the requested volume is written", func() {
			So(err, ShouldBeNil)
			So(stats.Communities, ShouldEqual, 3)
			So(stats.People, ShouldEqual, 12)
			So(stats.Posts, ShouldEqual, 15)
			So(stats.Comments, ShouldEqual, 30)
			So(stats.Rooms, ShouldEqual, 6)

			communities, _ := store.ListCommunities(ctx)
			So(len(communities), ShouldEqual, 3)
		})

		Convey("Then every comment and like reached the reactor", func() {
			So(reactor.comments, ShouldEqual, stats.Comments)
			So(reactor.likes, ShouldEqual, stats.Likes)
			So(stats.Events, ShouldEqual, stats.Comments+stats.Likes)
		})

		Convey("Then content stays within the seeded span", func() {
			posts, _ := store.ListPostsSince(ctx, cfg.Now.Add(-41*24*time.Hour))
			So(len(posts), ShouldEqual, 15)
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := seed.Generate(ctx, seed.DefaultConfig(2), repository.NewMemStore(), &countingReactor{})
		So(err, ShouldNotBeNil)
	})
}
