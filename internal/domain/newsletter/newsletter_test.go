package newsletter_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/agora/internal/adapters/mq/queue"
	"github.com/okian/agora/internal/adapters/repository"
	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/internal/domain/newsletter"
	"github.com/okian/agora/internal/domain/schedule"
	"github.com/okian/agora/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// 2024-06-01 is a Saturday.
var saturday = time.Date(2024, time.June, 1, 7, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []model.Email
	fail bool
}

func (f *fakeNotifier) Send(_ context.Context, e model.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("provider down")
	}
	f.sent = append(f.sent, e)
	return nil
}

func (f *fakeNotifier) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, e := range f.sent {
		out = append(out, e.To)
	}
	return out
}

func ptr(f model.Frequency) *model.Frequency { return &f }

func seed(freq model.Frequency) *repository.MemStore {
	s := repository.NewMemStore()
	s.PutCommunity(&model.Community{ID: "c1", Name: "gophers", NiceName: "Gophers", DigestFrequency: freq, DigestDayOfWeek: time.Saturday})
	s.PutPerson(&model.Person{ID: "ann", CommunityID: "c1", Username: "ann", Email: "ann@x"})
	s.PutPerson(&model.Person{ID: "ben", CommunityID: "c1", Username: "ben", Email: "ben@x"})
	s.PutChannel(&model.Channel{ID: "news", CommunityID: "c1", Name: "news", Emoji: "📰", Sort: 2})
	s.PutChannel(&model.Channel{ID: "help", CommunityID: "c1", Name: "help", Emoji: "🆘", Sort: 1})
	s.PutChannel(&model.Channel{ID: "staff", CommunityID: "c1", Name: "staff", Private: true, Members: []string{"ann"}})
	return s
}

func TestSections(t *testing.T) {
	Convey("Given posts across public and private channels", t, func() {
		channels := map[string]*model.Channel{
			"news":  {ID: "news", Name: "news", Emoji: "📰", Sort: 2},
			"help":  {ID: "help", Name: "help", Emoji: "🆘", Sort: 1},
			"staff": {ID: "staff", Name: "staff", Private: true},
		}
		var posts []*model.Post
		for i := 0; i < 6; i++ {
			posts = append(posts, &model.Post{ID: fmt.Sprintf("n%d", i), ChannelID: "news"})
		}
		posts = append(posts, &model.Post{ID: "h0", ChannelID: "help"}, &model.Post{ID: "s0", ChannelID: "staff"})

		sections := newsletter.Sections(posts, channels)

		Convey("Then private posts are dropped, channels are capped and sorted", func() {
			So(len(sections), ShouldEqual, 2)
			So(sections[0].Channel.ID, ShouldEqual, "help")
			So(sections[1].Channel.ID, ShouldEqual, "news")
			So(len(sections[1].Posts), ShouldEqual, 4)
			So(sections[1].Posts[0].ID, ShouldEqual, "n0")
		})
	})
}

func TestExcerpt(t *testing.T) {
	Convey("Given HTML content", t, func() {
		So(newsletter.Excerpt("<p>Hello <b>world</b> &amp; friends</p>"), ShouldEqual, "Hello world & friends...")

		Convey("When it is longer than 100 runes", func() {
			long := ""
			for i := 0; i < 150; i++ {
				long += "é"
			}
			out := newsletter.Excerpt(long)

			Convey("Then it is cut at 100 runes", func() {
				So([]rune(out), ShouldHaveLength, 103)
			})
		})
	})
}

func TestSendDigests(t *testing.T) {
	ctx := context.Background()

	Convey("Given a weekly community with recent public posts", t, func() {
		_ = logger.Init()
		store := seed(model.WeeklyUnset())
		store.PutPost(&model.Post{ID: "p1", CommunityID: "c1", ChannelID: "news", OwnerID: "ann", Title: "Release", Content: "<i>Go 1.24</i>", CreatedAt: saturday.Add(-24 * time.Hour)})
		store.PutPost(&model.Post{ID: "p2", CommunityID: "c1", ChannelID: "staff", OwnerID: "ann", Title: "Secret", CreatedAt: saturday.Add(-time.Hour)})
		store.PutPost(&model.Post{ID: "old", CommunityID: "c1", ChannelID: "help", OwnerID: "ann", Title: "Old", CreatedAt: saturday.AddDate(0, 0, -8)})
		notifier := &fakeNotifier{}
		n := newsletter.New(store, notifier, schedule.New(), newsletter.WithTemplateID("nl"))

		Convey("When the cycle runs on the community's day", func() {
			report, err := n.SendDigests(ctx, saturday)

			Convey("Then every member gets the weekly digest of public posts", func() {
				So(err, ShouldBeNil)
				So(report.Sent, ShouldEqual, 2)
				So(notifier.recipients(), ShouldResemble, []string{"ann@x", "ben@x"})

				email := notifier.sent[0]
				So(email.TemplateID, ShouldEqual, "nl")
				So(email.Model["subject"], ShouldEqual, "Gophers Community Weekly Digest")
				channels := email.Model["channels"].([]map[string]any)
				So(len(channels), ShouldEqual, 1)
				So(channels[0]["title"], ShouldEqual, "📰 news")
				posts := channels[0]["posts"].([]map[string]any)
				So(posts[0]["author"], ShouldEqual, "ann")
				So(posts[0]["content"], ShouldEqual, "Go 1.24...")
				So(posts[0]["link"], ShouldEqual, "https://gophers.comradery.io/post/p1")
			})

			Convey("And the cycle runs again the same day", func() {
				again, err := n.SendDigests(ctx, saturday)

				Convey("Then nobody is emailed twice", func() {
					So(err, ShouldBeNil)
					So(again.Sent, ShouldEqual, 0)
					So(again.Skipped, ShouldEqual, 2)
				})
			})
		})

		Convey("When the cycle runs on another day", func() {
			report, err := n.SendDigests(ctx, saturday.Add(24*time.Hour))

			Convey("Then nothing is sent", func() {
				So(err, ShouldBeNil)
				So(report.Sent, ShouldEqual, 0)
			})
		})

		Convey("When a member overrides with a daily digest", func() {
			ben, _ := store.GetPerson(ctx, "ben")
			ben.DigestFrequency = ptr(model.Daily())
			store.PutPerson(ben)

			report, err := n.SendDigests(ctx, saturday.Add(24*time.Hour))

			Convey("Then only that member is emailed on other days, with the daily issue", func() {
				So(err, ShouldBeNil)
				So(report.Sent, ShouldEqual, 0)
				So(notifier.recipients(), ShouldBeEmpty)
			})

			Convey("And there are posts from the last day", func() {
				store.PutPost(&model.Post{ID: "p3", CommunityID: "c1", ChannelID: "help", OwnerID: "ben", Title: "Fresh", CreatedAt: saturday.Add(20 * time.Hour)})
				report, err := n.SendDigests(ctx, saturday.Add(24*time.Hour))

				Convey("Then the daily digest goes to the member", func() {
					So(err, ShouldBeNil)
					So(report.Sent, ShouldEqual, 1)
					So(notifier.recipients(), ShouldResemble, []string{"ben@x"})
					So(notifier.sent[0].Model["subject"], ShouldEqual, "Gophers Community Daily Digest")
				})
			})
		})

		Convey("When the provider fails", func() {
			notifier.fail = true
			report, err := n.SendDigests(ctx, saturday)

			Convey("Then failures are reported and can be retried", func() {
				So(err, ShouldBeNil)
				So(report.Failed, ShouldEqual, 2)

				notifier.fail = false
				retry, _ := n.SendDigests(ctx, saturday)
				So(retry.Sent, ShouldEqual, 2)
			})
		})
	})

	Convey("Given a daily community without public posts", t, func() {
		_ = logger.Init()
		store := seed(model.Daily())
		store.PutPost(&model.Post{ID: "p2", CommunityID: "c1", ChannelID: "staff", OwnerID: "ann", Title: "Secret", CreatedAt: saturday.Add(-time.Hour)})
		notifier := &fakeNotifier{}

		report, err := newsletter.New(store, notifier, schedule.New()).SendDigests(ctx, saturday)

		Convey("Then no emails are sent", func() {
			So(err, ShouldBeNil)
			So(report.Sent, ShouldEqual, 0)
			So(notifier.recipients(), ShouldBeEmpty)
		})
	})
}

func TestPostCreated(t *testing.T) {
	ctx := context.Background()

	Convey("Given an immediate community", t, func() {
		_ = logger.Init()
		store := seed(model.Immediate())
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		notifier := &fakeNotifier{}
		n := newsletter.New(store, notifier, schedule.New(), newsletter.WithQueue(q))

		Convey("When a post is created in a private channel", func() {
			post := &model.Post{ID: "p9", CommunityID: "c1", ChannelID: "staff", OwnerID: "ann", Title: "Plan", CreatedAt: saturday}
			store.PutPost(post)
			count, err := n.PostCreated(ctx, post)

			Convey("Then only members with access get a job", func() {
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 1)
				So(q.Len(ctx), ShouldEqual, 1)
			})
		})

		Convey("When a public post is announced twice", func() {
			post := &model.Post{ID: "p1", CommunityID: "c1", ChannelID: "news", OwnerID: "ann", Title: "Hello", Content: "hi", CreatedAt: saturday}
			store.PutPost(post)
			first, _ := n.PostCreated(ctx, post)
			second, _ := n.PostCreated(ctx, post)

			Convey("Then jobs are deduplicated per post and recipient", func() {
				So(first, ShouldEqual, 2)
				So(second, ShouldEqual, 0)
			})

			Convey("And the jobs are handled", func() {
				out := q.Dequeue(ctx)
				for i := 0; i < 2; i++ {
					So(n.Handle(ctx, <-out), ShouldBeNil)
				}

				Convey("Then each member receives the post", func() {
					So(notifier.recipients(), ShouldHaveLength, 2)
					So(notifier.sent[0].Model["subject"], ShouldEqual, "Gophers: Hello")
				})
			})
		})
	})

	Convey("Given a weekly community", t, func() {
		_ = logger.Init()
		store := seed(model.WeeklyUnset())
		q := queue.NewInMemoryQueue()
		n := newsletter.New(store, &fakeNotifier{}, schedule.New(), newsletter.WithQueue(q))
		post := &model.Post{ID: "p1", CommunityID: "c1", ChannelID: "news"}
		store.PutPost(post)

		count, err := n.PostCreated(ctx, post)

		Convey("Then post creation enqueues nothing", func() {
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 0)
			So(q.Len(ctx), ShouldEqual, 0)
		})
	})
}
