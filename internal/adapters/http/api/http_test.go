package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/agora/internal/adapters/http/api"
	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/internal/domain/newsletter"
)

type mockDeps struct {
	postErr    error
	commentErr error
	likeErr    error
	posts      []string
	likes      []string
}

func (m *mockDeps) PostCreated(_ context.Context, postID string) (int, error) {
	m.posts = append(m.posts, postID)
	if m.postErr != nil {
		return 0, m.postErr
	}
	return 3, nil
}

func (m *mockDeps) CommentCreated(_ context.Context, _ string) ([]*model.NotificationEvent, error) {
	if m.commentErr != nil {
		return nil, m.commentErr
	}
	return []*model.NotificationEvent{{ID: "e1"}, {ID: "e2"}}, nil
}

func (m *mockDeps) ObjectLiked(_ context.Context, kind model.EntityKind, targetID, actorID string) (*model.NotificationEvent, error) {
	m.likes = append(m.likes, fmt.Sprintf("%s:%s:%s", kind, targetID, actorID))
	if m.likeErr != nil {
		return nil, m.likeErr
	}
	return &model.NotificationEvent{ID: "like"}, nil
}

func (m *mockDeps) GetStats() map[string]any {
	return map[string]any{"started": true, "queueLength": 0}
}

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDeps{})

		Convey("Then the health endpoint answers ok", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Then the stats endpoint returns provider stats", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got["started"], ShouldEqual, true)
			So(w.Header().Get("Cache-Control"), ShouldEqual, "no-store")
		})

		Convey("Then the metrics endpoint serves Prometheus text", func() {
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then non-GET stats requests are rejected", func() {
			w := do(mux, http.MethodPost, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestHooksHandler(t *testing.T) {
	Convey("Given the hooks handler", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When a post is announced", func() {
			w := do(mux, http.MethodPost, "/hooks/post-created", `{"post_id":"p1"}`)

			Convey("Then it is accepted with the job count", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"count":3`)
				So(deps.posts, ShouldResemble, []string{"p1"})
			})
		})

		Convey("When the queue is full", func() {
			deps.postErr = fmt.Errorf("%w: 2 of 3 jobs rejected", newsletter.ErrQueueFull)
			w := do(mux, http.MethodPost, "/hooks/post-created", `{"post_id":"p1"}`)

			Convey("Then the caller sees backpressure", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			})
		})

		Convey("When the post id is missing", func() {
			w := do(mux, http.MethodPost, "/hooks/post-created", `{}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.posts, ShouldBeEmpty)
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/hooks/comment-created", `{`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a comment is announced", func() {
			w := do(mux, http.MethodPost, "/hooks/comment-created", `{"comment_id":"k1"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"count":2`)
		})

		Convey("When the comment does not exist", func() {
			deps.commentErr = fmt.Errorf("comment k9: %w", model.ErrNotFound)
			w := do(mux, http.MethodPost, "/hooks/comment-created", `{"comment_id":"k9"}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a like is announced", func() {
			w := do(mux, http.MethodPost, "/hooks/object-liked", `{"kind":"POST","target_id":"p1","actor_id":"bob"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.likes, ShouldResemble, []string{"post:p1:bob"})
		})

		Convey("When a like names an unknown kind", func() {
			deps.likeErr = fmt.Errorf("%w: cannot like a room", model.ErrInvalidEvent)
			w := do(mux, http.MethodPost, "/hooks/object-liked", `{"kind":"room","target_id":"r1","actor_id":"bob"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a like names an unknown actor", func() {
			deps.likeErr = fmt.Errorf("actor ghost: %w", model.ErrNotFound)
			w := do(mux, http.MethodPost, "/hooks/object-liked", `{"kind":"post","target_id":"p1","actor_id":"ghost"}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a like comes from another community", func() {
			deps.likeErr = fmt.Errorf("%w: actor eve is not a member of community c1", model.ErrInvalidEvent)
			w := do(mux, http.MethodPost, "/hooks/object-liked", `{"kind":"post","target_id":"p1","actor_id":"eve"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a like has no actor", func() {
			w := do(mux, http.MethodPost, "/hooks/object-liked", `{"kind":"post","target_id":"p1"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.likes, ShouldBeEmpty)
		})

		Convey("When a hook is called with GET", func() {
			w := do(mux, http.MethodGet, "/hooks/post-created", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
