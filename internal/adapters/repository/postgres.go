package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/agora/internal/domain/model"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and bootstraps the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

var schema = []string{ //nolint:gochecknoglobals // static DDL
	`CREATE TABLE IF NOT EXISTS communities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		nice_name TEXT NOT NULL DEFAULT '',
		host TEXT NOT NULL DEFAULT '',
		logo_url TEXT NOT NULL DEFAULT '',
		notification_frequency TEXT NOT NULL DEFAULT 'daily',
		digest_frequency TEXT NOT NULL DEFAULT 'never',
		digest_day_of_week INT NOT NULL DEFAULT 6
	)`,
	`CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		community_id TEXT NOT NULL REFERENCES communities(id),
		username TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		notification_frequency TEXT,
		digest_frequency TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		community_id TEXT NOT NULL REFERENCES communities(id),
		name TEXT NOT NULL,
		emoji TEXT NOT NULL DEFAULT '',
		private BOOLEAN NOT NULL DEFAULT false,
		sort INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS channel_members (
		channel_id TEXT NOT NULL REFERENCES channels(id),
		person_id TEXT NOT NULL REFERENCES people(id),
		PRIMARY KEY (channel_id, person_id)
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		community_id TEXT NOT NULL REFERENCES communities(id),
		channel_id TEXT NOT NULL REFERENCES channels(id),
		owner_id TEXT NOT NULL REFERENCES people(id),
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		score DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS posts_created_at_idx ON posts (created_at)`,
	`CREATE TABLE IF NOT EXISTS post_votes (
		post_id TEXT NOT NULL REFERENCES posts(id),
		person_id TEXT NOT NULL REFERENCES people(id),
		PRIMARY KEY (post_id, person_id)
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL REFERENCES posts(id),
		parent_id TEXT REFERENCES comments(id),
		owner_id TEXT NOT NULL REFERENCES people(id),
		content TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		rescored BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS comments_created_at_idx ON comments (created_at)`,
	`CREATE TABLE IF NOT EXISTS comment_votes (
		comment_id TEXT NOT NULL REFERENCES comments(id),
		person_id TEXT NOT NULL REFERENCES people(id),
		PRIMARY KEY (comment_id, person_id)
	)`,
	`CREATE TABLE IF NOT EXISTS notification_events (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL REFERENCES people(id),
		kind TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		target_post_id TEXT,
		target_comment_id TEXT,
		target_key TEXT GENERATED ALWAYS AS (COALESCE(target_comment_id, target_post_id)) STORED,
		created_at TIMESTAMPTZ NOT NULL,
		read BOOLEAN NOT NULL DEFAULT false,
		pending_email BOOLEAN NOT NULL DEFAULT false,
		CHECK ((target_post_id IS NULL) <> (target_comment_id IS NULL))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS notification_events_like_uq
		ON notification_events (recipient_id, kind, target_key)
		WHERE kind IN ('like_on_post', 'like_on_comment')`,
	`CREATE INDEX IF NOT EXISTS notification_events_pending_idx
		ON notification_events (recipient_id) WHERE pending_email AND NOT read`,
	`CREATE TABLE IF NOT EXISTS chat_rooms (
		id TEXT PRIMARY KEY,
		community_id TEXT NOT NULL REFERENCES communities(id),
		name TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_room_members (
		room_id TEXT NOT NULL REFERENCES chat_rooms(id),
		person_id TEXT NOT NULL REFERENCES people(id),
		PRIMARY KEY (room_id, person_id)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL REFERENCES chat_rooms(id),
		sender_id TEXT NOT NULL REFERENCES people(id),
		posted TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_room_posted_idx ON chat_messages (room_id, posted DESC)`,
	`CREATE TABLE IF NOT EXISTS chat_cursors (
		person_id TEXT NOT NULL REFERENCES people(id),
		room_id TEXT NOT NULL REFERENCES chat_rooms(id),
		last_read_message_id TEXT NOT NULL DEFAULT '',
		last_notified_message_id TEXT NOT NULL DEFAULT '',
		last_notified_at TIMESTAMPTZ,
		PRIMARY KEY (person_id, room_id)
	)`,
	`CREATE TABLE IF NOT EXISTS community_invitations (
		code TEXT PRIMARY KEY,
		community_id TEXT NOT NULL REFERENCES communities(id),
		email TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

const communityColumns = `id, name, nice_name, host, logo_url, notification_frequency, digest_frequency, digest_day_of_week`

func scanCommunity(row pgx.Row) (*model.Community, error) {
	var (
		c                  model.Community
		notifFreq, digFreq string
		day                int
	)
	if err := row.Scan(&c.ID, &c.Name, &c.NiceName, &c.Host, &c.LogoURL, &notifFreq, &digFreq, &day); err != nil {
		return nil, err
	}
	var err error
	if c.NotificationFrequency, err = model.ParseFrequency(notifFreq); err != nil {
		return nil, fmt.Errorf("community %s: %w", c.ID, err)
	}
	if c.DigestFrequency, err = model.ParseFrequency(digFreq); err != nil {
		return nil, fmt.Errorf("community %s: %w", c.ID, err)
	}
	c.DigestDayOfWeek = time.Weekday(day % 7)
	return &c, nil
}

func (s *PostgresStore) ListCommunities(ctx context.Context) ([]*model.Community, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+communityColumns+` FROM communities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	defer rows.Close()

	var out []*model.Community
	for rows.Next() {
		c, err := scanCommunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan community: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetCommunity(ctx context.Context, id string) (*model.Community, error) {
	c, err := scanCommunity(s.pool.QueryRow(ctx, `SELECT `+communityColumns+` FROM communities WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("community", id, err)
	}
	return c, nil
}

const personColumns = `id, community_id, username, email, notification_frequency, digest_frequency`

func scanPerson(row pgx.Row) (*model.Person, error) {
	var (
		p                  model.Person
		notifFreq, digFreq *string
	)
	if err := row.Scan(&p.ID, &p.CommunityID, &p.Username, &p.Email, &notifFreq, &digFreq); err != nil {
		return nil, err
	}
	var err error
	if p.NotificationFrequency, err = parseOptionalFrequency(notifFreq); err != nil {
		return nil, fmt.Errorf("person %s: %w", p.ID, err)
	}
	if p.DigestFrequency, err = parseOptionalFrequency(digFreq); err != nil {
		return nil, fmt.Errorf("person %s: %w", p.ID, err)
	}
	return &p, nil
}

func parseOptionalFrequency(s *string) (*model.Frequency, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	f, err := model.ParseFrequency(*s)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, communityID string) ([]*model.Person, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+personColumns+` FROM people WHERE community_id = $1 ORDER BY id`, communityID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []*model.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetPerson(ctx context.Context, id string) (*model.Person, error) {
	p, err := scanPerson(s.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM people WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("person", id, err)
	}
	return p, nil
}

const channelQuery = `SELECT c.id, c.community_id, c.name, c.emoji, c.private, c.sort,
	COALESCE(array_agg(m.person_id) FILTER (WHERE m.person_id IS NOT NULL), '{}')
	FROM channels c LEFT JOIN channel_members m ON m.channel_id = c.id`

func scanChannel(row pgx.Row) (*model.Channel, error) {
	var c model.Channel
	if err := row.Scan(&c.ID, &c.CommunityID, &c.Name, &c.Emoji, &c.Private, &c.Sort, &c.Members); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) ListChannels(ctx context.Context, communityID string) ([]*model.Channel, error) {
	rows, err := s.pool.Query(ctx, channelQuery+` WHERE c.community_id = $1 GROUP BY c.id ORDER BY c.sort, c.id`, communityID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []*model.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	c, err := scanChannel(s.pool.QueryRow(ctx, channelQuery+` WHERE c.id = $1 GROUP BY c.id`, id))
	if err != nil {
		return nil, notFound("channel", id, err)
	}
	return c, nil
}

const postQuery = `SELECT p.id, p.community_id, p.channel_id, p.owner_id, p.title, p.content, p.created_at, p.score,
	COALESCE(array_agg(v.person_id) FILTER (WHERE v.person_id IS NOT NULL), '{}')
	FROM posts p LEFT JOIN post_votes v ON v.post_id = p.id`

func scanPost(row pgx.Row) (*model.Post, error) {
	var (
		p      model.Post
		voters []string
	)
	if err := row.Scan(&p.ID, &p.CommunityID, &p.ChannelID, &p.OwnerID, &p.Title, &p.Content, &p.CreatedAt, &p.Score, &voters); err != nil {
		return nil, err
	}
	p.Voters = model.NewVoterSet(voters...)
	return &p, nil
}

func (s *PostgresStore) queryPosts(ctx context.Context, sql string, args ...any) ([]*model.Post, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (*model.Post, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, postQuery+` WHERE p.id = $1 GROUP BY p.id`, id))
	if err != nil {
		return nil, notFound("post", id, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPostsSince(ctx context.Context, since time.Time) ([]*model.Post, error) {
	return s.queryPosts(ctx, postQuery+` WHERE p.created_at >= $1 GROUP BY p.id ORDER BY p.created_at DESC, p.id`, since)
}

func (s *PostgresStore) ListCommunityPostsSince(ctx context.Context, communityID string, since time.Time) ([]*model.Post, error) {
	return s.queryPosts(ctx,
		postQuery+` WHERE p.community_id = $1 AND p.created_at >= $2 GROUP BY p.id ORDER BY p.created_at DESC, p.id`,
		communityID, since)
}

const commentQuery = `SELECT c.id, c.post_id, COALESCE(c.parent_id, ''), c.owner_id, c.content, c.created_at, c.score, c.rescored,
	COALESCE(array_agg(v.person_id) FILTER (WHERE v.person_id IS NOT NULL), '{}')
	FROM comments c LEFT JOIN comment_votes v ON v.comment_id = c.id`

func scanComment(row pgx.Row) (*model.Comment, error) {
	var (
		c      model.Comment
		voters []string
	)
	if err := row.Scan(&c.ID, &c.PostID, &c.ParentID, &c.OwnerID, &c.Content, &c.CreatedAt, &c.Score, &c.Rescored, &voters); err != nil {
		return nil, err
	}
	c.Voters = model.NewVoterSet(voters...)
	return &c, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(s.pool.QueryRow(ctx, commentQuery+` WHERE c.id = $1 GROUP BY c.id`, id))
	if err != nil {
		return nil, notFound("comment", id, err)
	}
	return c, nil
}

func (s *PostgresStore) ListCommentsSince(ctx context.Context, since time.Time) ([]*model.Comment, error) {
	rows, err := s.pool.Query(ctx, commentQuery+` WHERE c.created_at >= $1 GROUP BY c.id ORDER BY c.id`, since)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []*model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SavePostScore(ctx context.Context, postID string, score float64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE posts SET score = $2 WHERE id = $1`, postID, score)
	if err != nil {
		return fmt.Errorf("save post score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FreezeCommentScore(ctx context.Context, commentID string, score float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE comments SET score = $2, rescored = true WHERE id = $1 AND NOT rescored`,
		commentID, score)
	if err != nil {
		return fmt.Errorf("freeze comment score: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	// Nothing updated: either already frozen or gone.
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM comments WHERE id = $1)`, commentID).Scan(&exists); err != nil {
		return fmt.Errorf("freeze comment score: %w", err)
	}
	if !exists {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.NotificationEvent) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO notification_events
			(id, recipient_id, kind, actor_id, target_post_id, target_comment_id, created_at, read, pending_email)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.RecipientID, string(e.Kind), e.ActorID,
		nullable(e.TargetPostID), nullable(e.TargetCommentID), e.CreatedAt, e.Read, e.PendingEmail)
	if err != nil {
		return false, fmt.Errorf("create event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpsertLikeEvent(ctx context.Context, e *model.NotificationEvent) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	var inserted bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO notification_events
			(id, recipient_id, kind, actor_id, target_post_id, target_comment_id, created_at, read, pending_email)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false, false)
		 ON CONFLICT (recipient_id, kind, target_key) WHERE kind IN ('like_on_post', 'like_on_comment')
		 DO UPDATE SET actor_id = EXCLUDED.actor_id, created_at = EXCLUDED.created_at, read = false
		 RETURNING (xmax = 0)`,
		e.ID, e.RecipientID, string(e.Kind), e.ActorID,
		nullable(e.TargetPostID), nullable(e.TargetCommentID), e.CreatedAt).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert like event: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) PendingNotifications(ctx context.Context, personID string) ([]*model.NotificationEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, recipient_id, kind, actor_id, COALESCE(target_post_id, ''), COALESCE(target_comment_id, ''),
			created_at, read, pending_email
		 FROM notification_events
		 WHERE recipient_id = $1 AND pending_email AND NOT read
		 ORDER BY created_at, id`, personID)
	if err != nil {
		return nil, fmt.Errorf("pending notifications: %w", err)
	}
	defer rows.Close()

	var out []*model.NotificationEvent
	for rows.Next() {
		var (
			e    model.NotificationEvent
			kind string
		)
		if err := rows.Scan(&e.ID, &e.RecipientID, &kind, &e.ActorID, &e.TargetPostID, &e.TargetCommentID,
			&e.CreatedAt, &e.Read, &e.PendingEmail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = model.NotificationKind(kind)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkEmailed(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE notification_events SET pending_email = false WHERE id = ANY($1)`, eventIDs); err != nil {
		return fmt.Errorf("mark emailed: %w", err)
	}
	return nil
}

func (s *PostgresStore) DirectRoomsFor(ctx context.Context, personID string) ([]*model.ChatRoom, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.community_id, r.name, r.type, lm.id, lm.sender_id, lm.posted
		 FROM chat_rooms r
		 JOIN chat_room_members me ON me.room_id = r.id AND me.person_id = $1
		 LEFT JOIN LATERAL (
			SELECT id, sender_id, posted FROM chat_messages
			WHERE room_id = r.id ORDER BY posted DESC, id DESC LIMIT 1
		 ) lm ON true
		 WHERE r.type = $2
		 ORDER BY r.id`, personID, string(model.RoomTypeDirect))
	if err != nil {
		return nil, fmt.Errorf("direct rooms: %w", err)
	}
	defer rows.Close()

	var (
		out  []*model.ChatRoom
		byID = make(map[string]*model.ChatRoom)
		ids  []string
	)
	for rows.Next() {
		var (
			r                model.ChatRoom
			roomType         string
			msgID, msgSender *string
			msgPosted        *time.Time
		)
		if err := rows.Scan(&r.ID, &r.CommunityID, &r.Name, &roomType, &msgID, &msgSender, &msgPosted); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.Type = model.RoomType(roomType)
		if msgID != nil && msgSender != nil && msgPosted != nil {
			r.LatestMessage = &model.Message{ID: *msgID, SenderID: *msgSender, Posted: *msgPosted}
		}
		out = append(out, &r)
		byID[r.ID] = &r
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("direct rooms: %w", err)
	}
	if len(ids) == 0 {
		return out, nil
	}

	members, err := s.pool.Query(ctx,
		`SELECT m.room_id, `+prefixed("p.", personColumns)+`
		 FROM chat_room_members m JOIN people p ON p.id = m.person_id
		 WHERE m.room_id = ANY($1) ORDER BY m.room_id, p.username`, ids)
	if err != nil {
		return nil, fmt.Errorf("room members: %w", err)
	}
	defer members.Close()
	for members.Next() {
		var (
			roomID             string
			p                  model.Person
			notifFreq, digFreq *string
		)
		if err := members.Scan(&roomID, &p.ID, &p.CommunityID, &p.Username, &p.Email, &notifFreq, &digFreq); err != nil {
			return nil, fmt.Errorf("scan room member: %w", err)
		}
		if p.NotificationFrequency, err = parseOptionalFrequency(notifFreq); err != nil {
			return nil, fmt.Errorf("person %s: %w", p.ID, err)
		}
		if p.DigestFrequency, err = parseOptionalFrequency(digFreq); err != nil {
			return nil, fmt.Errorf("person %s: %w", p.ID, err)
		}
		if r, ok := byID[roomID]; ok {
			r.Members = append(r.Members, &p)
		}
	}
	return out, members.Err()
}

func (s *PostgresStore) GetCursor(ctx context.Context, personID, roomID string) (model.ChatReadCursor, error) {
	c := model.ChatReadCursor{PersonID: personID, RoomID: roomID}
	var notifiedAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_read_message_id, last_notified_message_id, last_notified_at
		 FROM chat_cursors WHERE person_id = $1 AND room_id = $2`, personID, roomID).
		Scan(&c.LastReadMessageID, &c.LastNotifiedMessageID, &notifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("get cursor: %w", err)
	}
	if notifiedAt != nil {
		c.LastNotifiedAt = *notifiedAt
	}
	return c, nil
}

func (s *PostgresStore) AdvanceNotifiedCursor(ctx context.Context, personID, roomID string, msg model.Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_cursors (person_id, room_id, last_notified_message_id, last_notified_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (person_id, room_id) DO UPDATE
			SET last_notified_message_id = EXCLUDED.last_notified_message_id,
			    last_notified_at = EXCLUDED.last_notified_at
			WHERE chat_cursors.last_notified_at IS NULL OR chat_cursors.last_notified_at <= EXCLUDED.last_notified_at`,
		personID, roomID, msg.ID, msg.Posted)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO community_invitations (code, community_id, email, created_at) VALUES ($1, $2, $3, $4)`,
		inv.Code, inv.CommunityID, inv.Email, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func prefixed(prefix, columns string) string {
	return prefix + strings.ReplaceAll(columns, ", ", ", "+prefix)
}

var _ Store = (*PostgresStore)(nil)
