package store

import "time"

// ProgressUpdate is a per-batch checkpoint of cumulative run counters.
// Failed is always persisted alongside Sent/Delivered so failures are
// observable without recomputing resolved - sent.
type ProgressUpdate struct {
	CampaignID string
	Sent       int
	Delivered  int
	Failed     int
	Now        time.Time
}

// MessageRecord is one outbound message-log row, collected during a run
// and bulk-inserted after all batches settle.
type MessageRecord struct {
	ID               string
	CampaignID       string
	RecipientID      string
	ConversationID   string
	ChannelMessageID string
	Body             string
	CreatedAt        time.Time
}
