package model

import (
	"strings"
	"time"
)

// RoomType distinguishes named rooms from direct conversations.
type RoomType string

// Room types.
const (
	RoomTypeRoom   RoomType = "room"
	RoomTypeDirect RoomType = "direct"
)

// Message is the latest-message summary kept on a room.
type Message struct {
	ID       string
	SenderID string
	Posted   time.Time
}

// ChatRoom is a chat room inside a community.
type ChatRoom struct {
	ID          string
	CommunityID string
	Name        string
	Type        RoomType
	// Members are the private members; for direct rooms, the participants.
	Members []*Person
	// LatestMessage is nil for rooms without messages.
	LatestMessage *Message
}

// HasMember reports whether personID is a private member.
func (r *ChatRoom) HasMember(personID string) bool {
	for _, m := range r.Members {
		if m.ID == personID {
			return true
		}
	}
	return false
}

// DescriptiveName returns the room name, or the other members' usernames
// joined with ", " for unnamed rooms.
func (r *ChatRoom) DescriptiveName(viewerID string) string {
	if r.Name != "" {
		return r.Name
	}
	names := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		if m.ID != viewerID {
			names = append(names, m.Username)
		}
	}
	return strings.Join(names, ", ")
}

// Link returns the room URL under domain.
func (r *ChatRoom) Link(domain string) string {
	return domain + "/chat?room=" + r.ID
}

// ChatReadCursor tracks what a person has read and been emailed about in a room.
type ChatReadCursor struct {
	PersonID              string
	RoomID                string
	LastReadMessageID     string
	LastNotifiedMessageID string
	// LastNotifiedAt is the posted time of LastNotifiedMessageID. Advances
	// to older messages are ignored.
	LastNotifiedAt time.Time
}

// Advance moves the notified marker to msg unless it already covers a
// newer message. It reports whether the cursor changed.
func (c *ChatReadCursor) Advance(msg Message) bool {
	if c.LastNotifiedMessageID == msg.ID || msg.Posted.Before(c.LastNotifiedAt) {
		return false
	}
	c.LastNotifiedMessageID = msg.ID
	c.LastNotifiedAt = msg.Posted
	return true
}

// Covers reports whether messageID was already read or already digested.
func (c ChatReadCursor) Covers(messageID string) bool {
	return c.LastReadMessageID == messageID || c.LastNotifiedMessageID == messageID
}
