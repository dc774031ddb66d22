// Package model contains the domain entities shared by the ranking and
// digest components.
package model

import "time"

// Community is a tenant of the forum platform.
type Community struct {
	ID       string
	Name     string
	NiceName string
	// Host is the primary custom host, empty when the community has none.
	Host    string
	LogoURL string

	// NotificationFrequency is the members' default for reply/chat digests.
	NotificationFrequency Frequency
	// DigestFrequency drives the community newsletter.
	DigestFrequency Frequency
	// DigestDayOfWeek is the community's weekly newsletter day.
	DigestDayOfWeek time.Weekday
}

// DisplayName returns the nice name when set.
func (c *Community) DisplayName() string {
	if c.NiceName != "" {
		return c.NiceName
	}
	return c.Name
}

// Domain returns the base URL used for links in rendered payloads.
func (c *Community) Domain() string {
	host := c.Host
	if host == "" {
		host = c.Name + ".comradery.io"
	}
	return "https://" + host
}

// NewsletterFrequency returns DigestFrequency with the weekly day filled in
// from DigestDayOfWeek.
func (c *Community) NewsletterFrequency() Frequency {
	f := c.DigestFrequency
	if f.Cadence == CadenceWeekly && f.Day == nil {
		return Weekly(c.DigestDayOfWeek)
	}
	return f
}

// Person is a member of exactly one community.
type Person struct {
	ID          string
	CommunityID string
	Username    string
	Email       string

	// NotificationFrequency overrides the community default when non-nil.
	NotificationFrequency *Frequency
	// DigestFrequency overrides the community newsletter cadence when non-nil.
	DigestFrequency *Frequency
}

// Link returns the profile URL of p under domain.
func (p *Person) Link(domain string) string {
	return domain + "/profile/" + p.ID
}

// Channel groups posts inside a community.
type Channel struct {
	ID          string
	CommunityID string
	Name        string
	Emoji       string
	Private     bool
	Sort        int
	Members     []string
}

// PrettyName is the emoji-prefixed channel name.
func (c *Channel) PrettyName() string {
	return c.Emoji + " " + c.Name
}

// CanAccess reports whether personID may read posts in the channel.
func (c *Channel) CanAccess(personID string) bool {
	if !c.Private {
		return true
	}
	for _, m := range c.Members {
		if m == personID {
			return true
		}
	}
	return false
}
