package notify_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/agora/internal/adapters/notify"
	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func testEmail() model.Email {
	return model.Email{
		From:       "Acme Notifications <notifications@example.com>",
		To:         "ada@example.com",
		TemplateID: "12345",
		Model:      map[string]any{"subject": "hello"},
	}
}

func TestPostmark_Send(t *testing.T) {
	Convey("Given a Postmark notifier against a test server", t, func() {
		var (
			status  int
			reply   string
			gotBody map[string]any
			gotHdr  http.Header
			gotPath string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotHdr = r.Header.Clone()
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &gotBody)
			w.WriteHeader(status)
			_, _ = io.WriteString(w, reply)
		}))
		defer srv.Close()

		pm := notify.NewPostmark("token-1", notify.WithBaseURL(srv.URL))

		Convey("When the provider accepts the email", func() {
			status, reply = http.StatusOK, `{"ErrorCode":0,"Message":"OK","MessageID":"m1"}`
			err := pm.Send(context.Background(), testEmail())

			Convey("Then the template request is well formed", func() {
				So(err, ShouldBeNil)
				So(gotPath, ShouldEqual, "/email/withTemplate")
				So(gotHdr.Get("X-Postmark-Server-Token"), ShouldEqual, "token-1")
				So(gotHdr.Get("Content-Type"), ShouldEqual, "application/json")
				So(gotBody["To"], ShouldEqual, "ada@example.com")
				So(gotBody["TemplateId"], ShouldEqual, float64(12345))
				So(gotBody["TemplateModel"].(map[string]any)["subject"], ShouldEqual, "hello")
			})
		})

		Convey("When the template id is an alias", func() {
			status, reply = http.StatusOK, `{"ErrorCode":0}`
			email := testEmail()
			email.TemplateID = "comment-digest"
			So(pm.Send(context.Background(), email), ShouldBeNil)

			Convey("Then it is sent as TemplateAlias", func() {
				So(gotBody["TemplateAlias"], ShouldEqual, "comment-digest")
				_, hasID := gotBody["TemplateId"]
				So(hasID, ShouldBeFalse)
			})
		})

		Convey("When the provider fails with 503", func() {
			status, reply = http.StatusServiceUnavailable, `{"Message":"down"}`
			err := pm.Send(context.Background(), testEmail())

			Convey("Then the error is transient", func() {
				So(errors.Is(err, notify.ErrTransient), ShouldBeTrue)
				So(notify.IsTransient(err), ShouldBeTrue)
			})
		})

		Convey("When the provider rate limits", func() {
			status, reply = http.StatusTooManyRequests, `{}`
			So(errors.Is(pm.Send(context.Background(), testEmail()), notify.ErrTransient), ShouldBeTrue)
		})

		Convey("When the provider cannot be reached", func() {
			down := httptest.NewServer(http.NotFoundHandler())
			url := down.URL
			down.Close()
			err := notify.NewPostmark("token-1", notify.WithBaseURL(url)).Send(context.Background(), testEmail())

			Convey("Then the error is transient", func() {
				So(errors.Is(err, notify.ErrTransient), ShouldBeTrue)
			})
		})

		Convey("When the provider rejects the recipient", func() {
			status, reply = http.StatusUnprocessableEntity, `{"ErrorCode":300,"Message":"Invalid email"}`
			err := pm.Send(context.Background(), testEmail())

			Convey("Then the error is permanent", func() {
				So(errors.Is(err, notify.ErrPermanent), ShouldBeTrue)
				So(notify.IsTransient(err), ShouldBeFalse)
			})
		})
	})
}

type countingNotifier struct {
	calls atomic.Int64
	err   error
}

func (c *countingNotifier) Send(context.Context, model.Email) error {
	c.calls.Add(1)
	return c.err
}

func TestBreaker(t *testing.T) {
	Convey("Given a breaker around a failing notifier", t, func() {
		inner := &countingNotifier{err: notify.ErrTransient}
		b := notify.NewBreaker(inner, notify.BreakerSettings{
			Name:         "test-transient",
			FailureRatio: 0.5,
			MinRequests:  3,
			OpenTimeout:  time.Hour,
		})

		Convey("When enough transient failures accumulate", func() {
			for i := 0; i < 3; i++ {
				_ = b.Send(context.Background(), testEmail())
			}

			Convey("Then the circuit opens and further sends fail fast", func() {
				So(b.State(), ShouldEqual, "open")
				err := b.Send(context.Background(), testEmail())
				So(errors.Is(err, notify.ErrTransient), ShouldBeTrue)
				So(inner.calls.Load(), ShouldEqual, 3)
			})
		})
	})

	Convey("Given a breaker around a notifier that rejects recipients", t, func() {
		inner := &countingNotifier{err: notify.ErrPermanent}
		b := notify.NewBreaker(inner, notify.BreakerSettings{
			Name:         "test-permanent",
			FailureRatio: 0.5,
			MinRequests:  3,
			OpenTimeout:  time.Hour,
		})

		Convey("Then permanent failures never open the circuit", func() {
			for i := 0; i < 10; i++ {
				So(errors.Is(b.Send(context.Background(), testEmail()), notify.ErrPermanent), ShouldBeTrue)
			}
			So(b.State(), ShouldEqual, "closed")
			So(inner.calls.Load(), ShouldEqual, 10)
		})
	})
}

func TestRateLimited(t *testing.T) {
	Convey("Given a limiter with a burst of one", t, func() {
		inner := &countingNotifier{}
		rl := notify.NewRateLimited(inner, 0.001, 1)

		Convey("When the first send uses the burst", func() {
			So(rl.Send(context.Background(), testEmail()), ShouldBeNil)

			Convey("Then a second send with a short deadline fails transiently", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
				defer cancel()
				err := rl.Send(ctx, testEmail())
				So(errors.Is(err, notify.ErrTransient), ShouldBeTrue)
				So(inner.calls.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a disabled limiter", t, func() {
		inner := &countingNotifier{}
		rl := notify.NewRateLimited(inner, 0, 0)
		for i := 0; i < 50; i++ {
			So(rl.Send(context.Background(), testEmail()), ShouldBeNil)
		}
		So(inner.calls.Load(), ShouldEqual, 50)
	})
}

func TestLogNotifier(t *testing.T) {
	Convey("LogNotifier never fails", t, func() {
		So(notify.NewLogNotifier().Send(context.Background(), testEmail()), ShouldBeNil)
	})
}
