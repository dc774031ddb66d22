// Package newsletter sends community post digests and immediate per-post
// emails.
package newsletter

import (
	"html"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/okian/agora/internal/domain/model"
)

const (
	maxPostsPerChannel = 4
	excerptRunes       = 100
)

var stripPolicy = bluemonday.StrictPolicy() //nolint:gochecknoglobals // policies are safe for concurrent use

// Excerpt strips markup from content and keeps its first 100 runes,
// followed by "...".
func Excerpt(content string) string {
	text := html.UnescapeString(stripPolicy.Sanitize(content))
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > excerptRunes {
		text = string([]rune(text)[:excerptRunes])
	}
	return text + "..."
}

// Section is one channel block of a newsletter.
type Section struct {
	Channel *model.Channel
	Posts   []*model.Post
}

// Sections groups posts by public channel, keeps at most four per channel
// in the given order and orders channels by their Sort value. Posts in
// private or unknown channels are dropped.
func Sections(posts []*model.Post, channels map[string]*model.Channel) []Section {
	byChannel := make(map[string]*Section)
	var order []*Section
	for _, p := range posts {
		ch, ok := channels[p.ChannelID]
		if !ok || ch.Private {
			continue
		}
		sec, ok := byChannel[ch.ID]
		if !ok {
			sec = &Section{Channel: ch}
			byChannel[ch.ID] = sec
			order = append(order, sec)
		}
		if len(sec.Posts) < maxPostsPerChannel {
			sec.Posts = append(sec.Posts, p)
		}
	}

	out := make([]Section, 0, len(order))
	for _, s := range order {
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Channel.Sort < out[j].Channel.Sort })
	return out
}

// TemplateModel renders the newsletter template data. authors maps owner
// ids to usernames.
func TemplateModel(community *model.Community, subject string, sections []Section, authors map[string]string) map[string]any {
	domain := community.Domain()
	channels := make([]map[string]any, 0, len(sections))
	for _, s := range sections {
		posts := make([]map[string]any, 0, len(s.Posts))
		for _, p := range s.Posts {
			posts = append(posts, map[string]any{
				"title":   p.Title,
				"link":    p.Link(domain),
				"author":  authors[p.OwnerID],
				"content": Excerpt(p.Content),
			})
		}
		channels = append(channels, map[string]any{
			"title": s.Channel.PrettyName(),
			"posts": posts,
		})
	}

	var logo any
	if community.LogoURL != "" {
		logo = community.LogoURL
	}
	return map[string]any{
		"subject":   subject,
		"community": community.DisplayName(),
		"logo":      logo,
		"domain":    domain,
		"channels":  channels,
	}
}

// DigestSubject is "<community> Community <Daily|Weekly> Digest".
func DigestSubject(community *model.Community, f model.Frequency) string {
	name := f.Cadence.String()
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return community.DisplayName() + " Community " + name + " Digest"
}
