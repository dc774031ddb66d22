package model

import "time"

// Invitation lets one email address join a community through its code.
type Invitation struct {
	Code        string
	CommunityID string
	Email       string
	CreatedAt   time.Time
}

// Link returns the join URL on the community's domain.
func (i *Invitation) Link(c *Community) string {
	return c.Domain() + "?invite_code=" + i.Code
}
