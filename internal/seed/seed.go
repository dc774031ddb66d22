// Package seed fills a store with a synthetic forum so the batch commands
// have something to rank and notify about on an empty in-memory store.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
)

// Content spans a little past the 30-day rescore window so some posts
// fall outside it.
const (
	contentSpan      = 40 * 24 * time.Hour
	replyProbability = 0.5
	likeProbability  = 0.3
	privateEvery     = 3
)

// Writer accepts seeded rows.
type Writer interface {
	PutCommunity(c *model.Community)
	PutPerson(p *model.Person)
	PutChannel(c *model.Channel)
	PutPost(p *model.Post)
	PutComment(c *model.Comment)
	PutRoom(r *model.ChatRoom)
}

// Reactor turns seeded writes into notification events the same way live
// traffic does.
type Reactor interface {
	CommentCreated(ctx context.Context, commentID string) ([]*model.NotificationEvent, error)
	ObjectLiked(ctx context.Context, kind model.EntityKind, targetID, actorID string) (*model.NotificationEvent, error)
}

// Config controls the generated volume.
type Config struct {
	Communities         int
	MembersPerCommunity int
	PostsPerCommunity   int
	CommentsPerPost     int
	// Seed makes the shape of the forum reproducible. IDs are always random.
	Seed uint64
	Now  time.Time
}

// Stats counts what was generated.
type Stats struct {
	Communities int
	People      int
	Posts       int
	Comments    int
	Likes       int
	Rooms       int
	Events      int
}

// DefaultConfig generates a small forum.
func DefaultConfig(communities int) Config {
	return Config{
		Communities:         communities,
		MembersPerCommunity: 6,
		PostsPerCommunity:   12,
		CommentsPerPost:     4,
		Seed:                1,
		Now:                 time.Now(),
	}
}

var (
	notificationCycle = []model.Frequency{model.Daily(), model.Weekly(time.Saturday), model.Hourly()}           //nolint:gochecknoglobals // fixed rotation
	digestCycle       = []model.Frequency{model.Daily(), model.WeeklyUnset(), model.Immediate(), model.Never()} //nolint:gochecknoglobals // fixed rotation
)

type generator struct {
	cfg     Config
	rng     *rand.Rand
	w       Writer
	r       Reactor
	stats   Stats
	log     logger.Logger
	members []*model.Person
}

// Generate writes cfg's forum into w and reports every comment and like to r.
func Generate(ctx context.Context, cfg Config, w Writer, r Reactor) (Stats, error) {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	g := &generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)), //nolint:gosec // synthetic data
		w:   w,
		r:   r,
		log: logger.Get().Named("seed"),
	}
	for i := 0; i < cfg.Communities; i++ {
		if err := ctx.Err(); err != nil {
			return g.stats, err
		}
		if err := g.community(ctx, i); err != nil {
			return g.stats, err
		}
	}
	g.log.Info(ctx, "seeded synthetic forum",
		logger.Int("communities", g.stats.Communities),
		logger.Int("people", g.stats.People),
		logger.Int("posts", g.stats.Posts),
		logger.Int("comments", g.stats.Comments),
		logger.Int("events", g.stats.Events),
	)
	return g.stats, nil
}

func (g *generator) community(ctx context.Context, i int) error {
	name := "community" + strconv.Itoa(i)
	c := &model.Community{
		ID:                    uuid.NewString(),
		Name:                  name,
		NiceName:              "Community " + strconv.Itoa(i),
		NotificationFrequency: notificationCycle[i%len(notificationCycle)],
		DigestFrequency:       digestCycle[i%len(digestCycle)],
		DigestDayOfWeek:       time.Saturday,
	}
	g.w.PutCommunity(c)
	g.stats.Communities++

	g.members = g.members[:0]
	for m := 0; m < g.cfg.MembersPerCommunity; m++ {
		username := fmt.Sprintf("%s-member%d", name, m)
		p := &model.Person{
			ID:          uuid.NewString(),
			CommunityID: c.ID,
			Username:    username,
			Email:       username + "@example.com",
		}
		// every fourth member has no email and is never mailed
		if m%4 == 3 {
			p.Email = ""
		}
		g.w.PutPerson(p)
		g.members = append(g.members, p)
		g.stats.People++
	}
	if len(g.members) == 0 {
		return nil
	}

	channels := []*model.Channel{
		{ID: uuid.NewString(), CommunityID: c.ID, Name: "general", Emoji: "💬", Sort: 1},
		{ID: uuid.NewString(), CommunityID: c.ID, Name: "announcements", Emoji: "📣", Sort: 0},
		{ID: uuid.NewString(), CommunityID: c.ID, Name: "staff", Private: true, Sort: 2, Members: []string{g.members[0].ID}},
	}
	for _, ch := range channels {
		g.w.PutChannel(ch)
	}

	for p := 0; p < g.cfg.PostsPerCommunity; p++ {
		channel := channels[p%2]
		if p%privateEvery == privateEvery-1 {
			channel = channels[2]
		}
		if err := g.post(ctx, c, channel, p); err != nil {
			return err
		}
	}
	g.rooms(c)
	return nil
}

func (g *generator) post(ctx context.Context, c *model.Community, channel *model.Channel, n int) error {
	owner := g.pick()
	created := g.cfg.Now.Add(-time.Duration(g.rng.Int64N(int64(contentSpan))))
	post := &model.Post{
		ID:          uuid.NewString(),
		CommunityID: c.ID,
		ChannelID:   channel.ID,
		OwnerID:     owner.ID,
		Title:       fmt.Sprintf("Post %d in %s", n, channel.Name),
		Content:     fmt.Sprintf("<p>Synthetic <b>post</b> %d.</p>", n),
		Voters:      g.voters(),
		CreatedAt:   created,
	}
	g.w.PutPost(post)
	g.stats.Posts++

	var comments []*model.Comment
	for k := 0; k < g.cfg.CommentsPerPost; k++ {
		comment := &model.Comment{
			ID:        uuid.NewString(),
			PostID:    post.ID,
			OwnerID:   g.pick().ID,
			Content:   fmt.Sprintf("comment %d", k),
			Voters:    g.voters(),
			CreatedAt: created.Add(time.Duration(k+1) * time.Hour),
		}
		if len(comments) > 0 && g.rng.Float64() < replyProbability {
			comment.ParentID = comments[g.rng.IntN(len(comments))].ID
		}
		g.w.PutComment(comment)
		comments = append(comments, comment)
		g.stats.Comments++

		events, err := g.r.CommentCreated(ctx, comment.ID)
		if err != nil {
			return fmt.Errorf("seed comment %s: %w", comment.ID, err)
		}
		g.stats.Events += len(events)
	}

	for _, m := range g.members {
		if g.rng.Float64() >= likeProbability {
			continue
		}
		event, err := g.r.ObjectLiked(ctx, model.KindPost, post.ID, m.ID)
		if err != nil {
			return fmt.Errorf("seed like %s: %w", post.ID, err)
		}
		g.stats.Likes++
		if event != nil {
			g.stats.Events++
		}
	}
	return nil
}

// rooms pairs consecutive members into direct rooms with a recent message.
func (g *generator) rooms(c *model.Community) {
	for i := 0; i+1 < len(g.members); i += 2 {
		a, b := g.members[i], g.members[i+1]
		sender := a
		if g.rng.IntN(2) == 1 {
			sender = b
		}
		g.w.PutRoom(&model.ChatRoom{
			ID:          uuid.NewString(),
			CommunityID: c.ID,
			Type:        model.RoomTypeDirect,
			Members:     []*model.Person{a, b},
			LatestMessage: &model.Message{
				ID:       uuid.NewString(),
				SenderID: sender.ID,
				Posted:   g.cfg.Now.Add(-time.Duration(g.rng.Int64N(int64(contentSpan)))),
			},
		})
		g.stats.Rooms++
	}
}

func (g *generator) pick() *model.Person {
	return g.members[g.rng.IntN(len(g.members))]
}

func (g *generator) voters() model.VoterSet {
	v := model.VoterSet{}
	for _, m := range g.members {
		if g.rng.IntN(3) == 0 {
			v.Add(m.ID)
		}
	}
	return v
}
