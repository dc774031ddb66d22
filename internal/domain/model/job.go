package model

import "time"

// DeliveryJob is a single immediate send: one post to one recipient.
type DeliveryJob struct {
	ID          string
	CommunityID string
	PostID      string
	RecipientID string
	EnqueuedAt  time.Time
}

// Key identifies the (post, recipient) pair the job delivers.
func (j DeliveryJob) Key() string {
	return "immediate|" + j.PostID + "|" + j.RecipientID
}
