package model

import "time"

// EntityKind distinguishes the two scored entity types.
type EntityKind string

// Scored entity kinds.
const (
	KindPost    EntityKind = "post"
	KindComment EntityKind = "comment"
)

// ScoredEntity is the capability set the rescorer works against.
type ScoredEntity interface {
	EntityID() string
	Kind() EntityKind
	Votes() int
	Posted() time.Time
	CurrentScore() float64
	// RescoreEligible reports whether a rescore may still change the score.
	RescoreEligible() bool
}

// VoterSet holds the distinct persons who upvoted an entity.
type VoterSet map[string]struct{}

// NewVoterSet builds a set from ids; duplicates collapse.
func NewVoterSet(ids ...string) VoterSet {
	s := make(VoterSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add records a vote and reports whether it was new.
func (s VoterSet) Add(personID string) bool {
	if _, ok := s[personID]; ok {
		return false
	}
	s[personID] = struct{}{}
	return true
}

// Has reports whether personID already voted.
func (s VoterSet) Has(personID string) bool {
	_, ok := s[personID]
	return ok
}

// Post is a top-level forum entry.
type Post struct {
	ID          string
	CommunityID string
	ChannelID   string
	OwnerID     string
	Title       string
	Content     string
	Voters      VoterSet
	CreatedAt   time.Time
	Score       float64
}

func (p *Post) EntityID() string      { return p.ID }
func (p *Post) Kind() EntityKind      { return KindPost }
func (p *Post) Votes() int            { return len(p.Voters) }
func (p *Post) Posted() time.Time     { return p.CreatedAt }
func (p *Post) CurrentScore() float64 { return p.Score }
func (p *Post) Owner() string         { return p.OwnerID }

// RescoreEligible is always true; the time term keeps moving.
func (p *Post) RescoreEligible() bool { return true }

// Link returns the post URL under domain.
func (p *Post) Link(domain string) string {
	return domain + "/post/" + p.ID
}

// Comment is a reply to a post or to another comment.
type Comment struct {
	ID       string
	PostID   string
	ParentID string // empty for top-level comments
	OwnerID  string
	Content  string
	Voters   VoterSet
	// CreatedAt is set once at creation.
	CreatedAt time.Time
	Score     float64
	// Rescored freezes the score after its first computation. Votes received
	// later are not reflected.
	Rescored bool
}

func (c *Comment) EntityID() string      { return c.ID }
func (c *Comment) Kind() EntityKind      { return KindComment }
func (c *Comment) Votes() int            { return len(c.Voters) }
func (c *Comment) Posted() time.Time     { return c.CreatedAt }
func (c *Comment) CurrentScore() float64 { return c.Score }
func (c *Comment) RescoreEligible() bool { return !c.Rescored }
func (c *Comment) Owner() string         { return c.OwnerID }
