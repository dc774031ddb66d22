package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/internal/domain/newsletter"
)

// HookDependencies are the write-side reactions the forum triggers.
type HookDependencies interface {
	PostCreated(ctx context.Context, postID string) (int, error)
	CommentCreated(ctx context.Context, commentID string) ([]*model.NotificationEvent, error)
	ObjectLiked(ctx context.Context, kind model.EntityKind, targetID, actorID string) (*model.NotificationEvent, error)
}

// HooksHandler handles POST /hooks/* requests.
type HooksHandler struct {
	deps HookDependencies
}

// NewHooksHandler creates a new hooks handler.
func NewHooksHandler(deps HookDependencies) *HooksHandler {
	return &HooksHandler{deps: deps}
}

type postCreatedRequest struct {
	PostID string `json:"post_id"`
}

type commentCreatedRequest struct {
	CommentID string `json:"comment_id"`
}

type objectLikedRequest struct {
	Kind     string `json:"kind"`
	TargetID string `json:"target_id"`
	ActorID  string `json:"actor_id"`
}

func (r objectLikedRequest) validate() error {
	switch {
	case strings.TrimSpace(r.TargetID) == "":
		return errors.New("missing target_id")
	case strings.TrimSpace(r.ActorID) == "":
		return errors.New("missing actor_id")
	}
	return nil
}

type hookResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// decode reads a JSON body for a POST hook. It writes the error response
// itself and reports whether the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return false
	}
	return true
}

func fail(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

// HandlePostCreated handles POST /hooks/post-created.
func (h *HooksHandler) HandlePostCreated(w http.ResponseWriter, r *http.Request) {
	var req postCreatedRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PostID) == "" {
		fail(w, fmt.Errorf("%w: missing post_id", ErrBadRequest))
		return
	}
	n, err := h.deps.PostCreated(r.Context(), req.PostID)
	if errors.Is(err, newsletter.ErrQueueFull) {
		fail(w, fmt.Errorf("%w: %w", ErrBackpressure, err))
		return
	}
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, hookResponse{Status: "accepted", Count: n})
}

// HandleCommentCreated handles POST /hooks/comment-created.
func (h *HooksHandler) HandleCommentCreated(w http.ResponseWriter, r *http.Request) {
	var req commentCreatedRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CommentID) == "" {
		fail(w, fmt.Errorf("%w: missing comment_id", ErrBadRequest))
		return
	}
	events, err := h.deps.CommentCreated(r.Context(), req.CommentID)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hookResponse{Status: "recorded", Count: len(events)})
}

// HandleObjectLiked handles POST /hooks/object-liked.
func (h *HooksHandler) HandleObjectLiked(w http.ResponseWriter, r *http.Request) {
	var req objectLikedRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		fail(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	event, err := h.deps.ObjectLiked(r.Context(), model.EntityKind(strings.ToLower(req.Kind)), req.TargetID, req.ActorID)
	if err != nil {
		fail(w, err)
		return
	}
	count := 0
	if event != nil {
		count = 1
	}
	writeJSON(w, http.StatusOK, hookResponse{Status: "recorded", Count: count})
}
