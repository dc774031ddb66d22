package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/agora/internal/domain/model"
)

type cursorKey struct{ personID, roomID string }

// MemStore is a mutex-guarded in-memory Store. Reads return copies so
// callers never share state with the store.
type MemStore struct {
	mu          sync.RWMutex
	communities map[string]*model.Community
	people      map[string]*model.Person
	channels    map[string]*model.Channel
	posts       map[string]*model.Post
	comments    map[string]*model.Comment
	events      map[string]*model.NotificationEvent
	likes       map[model.LikeKey]string
	rooms       map[string]*model.ChatRoom
	cursors     map[cursorKey]model.ChatReadCursor
	invitations map[string]model.Invitation
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		communities: make(map[string]*model.Community),
		people:      make(map[string]*model.Person),
		channels:    make(map[string]*model.Channel),
		posts:       make(map[string]*model.Post),
		comments:    make(map[string]*model.Comment),
		events:      make(map[string]*model.NotificationEvent),
		likes:       make(map[model.LikeKey]string),
		rooms:       make(map[string]*model.ChatRoom),
		cursors:     make(map[cursorKey]model.ChatReadCursor),
		invitations: make(map[string]model.Invitation),
	}
}

// PutCommunity inserts or replaces a community.
func (s *MemStore) PutCommunity(c *model.Community) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.communities[c.ID] = &cp
}

// PutPerson inserts or replaces a person.
func (s *MemStore) PutPerson(p *model.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people[p.ID] = clonePerson(p)
}

// PutChannel inserts or replaces a channel.
func (s *MemStore) PutChannel(c *model.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.ID] = cloneChannel(c)
}

// PutPost inserts or replaces a post.
func (s *MemStore) PutPost(p *model.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = clonePost(p)
}

// PutComment inserts or replaces a comment.
func (s *MemStore) PutComment(c *model.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[c.ID] = cloneComment(c)
}

// PutRoom inserts or replaces a chat room.
func (s *MemStore) PutRoom(r *model.ChatRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = cloneRoom(r)
}

// PutCursor inserts or replaces a read cursor.
func (s *MemStore) PutCursor(c model.ChatReadCursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[cursorKey{c.PersonID, c.RoomID}] = c
}

// GetEvent returns a copy of the event with id.
func (s *MemStore) GetEvent(_ context.Context, id string) (*model.NotificationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

// ListEvents returns copies of every event addressed to personID.
func (s *MemStore) ListEvents(_ context.Context, personID string) []*model.NotificationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.NotificationEvent
	for _, e := range s.events {
		if e.RecipientID == personID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sortEvents(out)
	return out
}

func (s *MemStore) ListCommunities(context.Context) ([]*model.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Community, 0, len(s.communities))
	for _, c := range s.communities {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetCommunity(_ context.Context, id string) (*model.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.communities[id]
	if !ok {
		return nil, fmt.Errorf("community %s: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *MemStore) ListMembers(_ context.Context, communityID string) ([]*model.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Person
	for _, p := range s.people {
		if p.CommunityID == communityID {
			out = append(out, clonePerson(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetPerson(_ context.Context, id string) (*model.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	if !ok {
		return nil, fmt.Errorf("person %s: %w", id, ErrNotFound)
	}
	return clonePerson(p), nil
}

func (s *MemStore) ListChannels(_ context.Context, communityID string) ([]*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Channel
	for _, c := range s.channels {
		if c.CommunityID == communityID {
			out = append(out, cloneChannel(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sort != out[j].Sort {
			return out[i].Sort < out[j].Sort
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemStore) GetChannel(_ context.Context, id string) (*model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	return cloneChannel(c), nil
}

func (s *MemStore) GetPost(_ context.Context, id string) (*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	return clonePost(p), nil
}

func (s *MemStore) GetComment(_ context.Context, id string) (*model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[id]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	return cloneComment(c), nil
}

func (s *MemStore) ListPostsSince(ctx context.Context, since time.Time) ([]*model.Post, error) {
	return s.ListCommunityPostsSince(ctx, "", since)
}

// ListCommunityPostsSince returns posts newest first. An empty communityID
// matches every community.
func (s *MemStore) ListCommunityPostsSince(_ context.Context, communityID string, since time.Time) ([]*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Post
	for _, p := range s.posts {
		if communityID != "" && p.CommunityID != communityID {
			continue
		}
		if !p.CreatedAt.Before(since) {
			out = append(out, clonePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemStore) ListCommentsSince(_ context.Context, since time.Time) ([]*model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Comment
	for _, c := range s.comments {
		if !c.CreatedAt.Before(since) {
			out = append(out, cloneComment(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) SavePostScore(_ context.Context, postID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	p.Score = score
	return nil
}

func (s *MemStore) FreezeCommentScore(_ context.Context, commentID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	if c.Rescored {
		return nil
	}
	c.Score = score
	c.Rescored = true
	return nil
}

// PutEvent stores e, replacing any event with the same id.
func (s *MemStore) PutEvent(e *model.NotificationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events[e.ID] = &cp
}

func (s *MemStore) CreateEvent(_ context.Context, e *model.NotificationEvent) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return false, nil
	}
	cp := *e
	s.events[e.ID] = &cp
	return true, nil
}

func (s *MemStore) UpsertLikeEvent(_ context.Context, e *model.NotificationEvent) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	key := model.LikeKey{RecipientID: e.RecipientID, Kind: e.Kind, TargetID: e.Target()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.likes[key]; ok {
		existing := s.events[id]
		existing.ActorID = e.ActorID
		existing.CreatedAt = e.CreatedAt
		existing.Read = false
		return false, nil
	}
	cp := *e
	s.events[e.ID] = &cp
	s.likes[key] = e.ID
	return true, nil
}

func (s *MemStore) PendingNotifications(_ context.Context, personID string) ([]*model.NotificationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.NotificationEvent
	for _, e := range s.events {
		if e.RecipientID == personID && e.PendingEmail && !e.Read {
			cp := *e
			out = append(out, &cp)
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *MemStore) MarkEmailed(_ context.Context, eventIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range eventIDs {
		if e, ok := s.events[id]; ok {
			e.PendingEmail = false
		}
	}
	return nil
}

func (s *MemStore) DirectRoomsFor(_ context.Context, personID string) ([]*model.ChatRoom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.ChatRoom
	for _, r := range s.rooms {
		if r.Type == model.RoomTypeDirect && r.HasMember(personID) {
			out = append(out, cloneRoom(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetCursor(_ context.Context, personID, roomID string) (model.ChatReadCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.cursors[cursorKey{personID, roomID}]; ok {
		return c, nil
	}
	return model.ChatReadCursor{PersonID: personID, RoomID: roomID}, nil
}

func (s *MemStore) AdvanceNotifiedCursor(_ context.Context, personID, roomID string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cursorKey{personID, roomID}
	c, ok := s.cursors[key]
	if !ok {
		c = model.ChatReadCursor{PersonID: personID, RoomID: roomID}
	}
	c.Advance(msg)
	s.cursors[key] = c
	return nil
}

// Close is a no-op.
func (s *MemStore) CreateInvitation(_ context.Context, inv *model.Invitation) error {
	if inv.Code == "" || inv.Email == "" {
		return fmt.Errorf("%w: invitation needs a code and an email", ErrInvalidEvent)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.communities[inv.CommunityID]; !ok {
		return fmt.Errorf("community %s: %w", inv.CommunityID, ErrNotFound)
	}
	if _, ok := s.invitations[inv.Code]; ok {
		return fmt.Errorf("%w: duplicate invite code %s", ErrInvalidEvent, inv.Code)
	}
	s.invitations[inv.Code] = *inv
	return nil
}

// Invitations returns the invitations of a community, oldest first.
func (s *MemStore) Invitations(communityID string) []model.Invitation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Invitation
	for _, inv := range s.invitations {
		if inv.CommunityID == communityID {
			out = append(out, inv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemStore) Close() {}

func sortEvents(events []*model.NotificationEvent) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
}

func clonePerson(p *model.Person) *model.Person {
	cp := *p
	if p.NotificationFrequency != nil {
		f := *p.NotificationFrequency
		cp.NotificationFrequency = &f
	}
	if p.DigestFrequency != nil {
		f := *p.DigestFrequency
		cp.DigestFrequency = &f
	}
	return &cp
}

func cloneChannel(c *model.Channel) *model.Channel {
	cp := *c
	cp.Members = append([]string(nil), c.Members...)
	return &cp
}

func cloneVoters(v model.VoterSet) model.VoterSet {
	out := make(model.VoterSet, len(v))
	for k := range v {
		out[k] = struct{}{}
	}
	return out
}

func clonePost(p *model.Post) *model.Post {
	cp := *p
	cp.Voters = cloneVoters(p.Voters)
	return &cp
}

func cloneComment(c *model.Comment) *model.Comment {
	cp := *c
	cp.Voters = cloneVoters(c.Voters)
	return &cp
}

func cloneRoom(r *model.ChatRoom) *model.ChatRoom {
	cp := *r
	cp.Members = make([]*model.Person, len(r.Members))
	for i, m := range r.Members {
		cp.Members[i] = clonePerson(m)
	}
	if r.LatestMessage != nil {
		msg := *r.LatestMessage
		cp.LatestMessage = &msg
	}
	return &cp
}

var _ Store = (*MemStore)(nil)
