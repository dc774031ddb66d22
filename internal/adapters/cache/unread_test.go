package cache_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/agora/internal/adapters/cache"
)

func TestUnreadKey(t *testing.T) {
	Convey("Unread keys are namespaced by person", t, func() {
		So(cache.UnreadKey("p1"), ShouldEqual, "unread:p1")
	})
}

func TestMemCounter(t *testing.T) {
	Convey("Given an in-memory counter", t, func() {
		c := cache.NewMemCounter()
		ctx := context.Background()

		Convey("When incremented concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = c.Incr(ctx, "p1")
				}()
			}
			wg.Wait()

			Convey("Then no increment is lost", func() {
				n, err := c.Get(ctx, "p1")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 100)
			})
		})

		Convey("Unknown people read as zero", func() {
			n, err := c.Get(ctx, "nobody")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})
	})
}

func TestRedisCounter(t *testing.T) {
	url := os.Getenv("AGORA_TEST_REDIS_URL")
	if url == "" || testing.Short() {
		t.Skip("AGORA_TEST_REDIS_URL not set")
	}

	Convey("Given a Redis counter", t, func() {
		c, err := cache.NewRedisCounter(url)
		So(err, ShouldBeNil)
		defer c.Close()
		ctx := context.Background()
		So(c.Ping(ctx), ShouldBeNil)

		person := uuid.NewString()

		Convey("Then increments accumulate", func() {
			n, err := c.Incr(ctx, person)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			n, _ = c.Incr(ctx, person)
			So(n, ShouldEqual, 2)
			got, err := c.Get(ctx, person)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, 2)
		})
	})

	Convey("A malformed URL is rejected", t, func() {
		_, err := cache.NewRedisCounter("not a url")
		So(err, ShouldNotBeNil)
	})
}
