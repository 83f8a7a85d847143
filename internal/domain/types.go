package domain

import "time"

type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusScheduled CampaignStatus = "scheduled"
	StatusRunning   CampaignStatus = "running"
	StatusCompleted CampaignStatus = "completed"
	StatusPaused    CampaignStatus = "paused"
)

// Dispatchable reports whether a fresh run may claim this status.
func (s CampaignStatus) Dispatchable() bool {
	return s == StatusDraft || s == StatusScheduled
}

type Campaign struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	MessageTemplate string         `json:"messageTemplate"`
	TargetTags      []string       `json:"targetTags"`
	Status          CampaignStatus `json:"status"`
	ScheduledAt     *time.Time     `json:"scheduledAt,omitempty"`
	SentCount       int            `json:"sentCount"`
	DeliveredCount  int            `json:"deliveredCount"`
	FailedCount     int            `json:"failedCount"`
	ReadCount       int            `json:"readCount"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Recipient is read-only to the dispatch engine. Attributes carries the
// free-form fields available for template substitution.
type Recipient struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Phone      string            `json:"phone"`
	Company    string            `json:"company"`
	Attributes map[string]string `json:"attributes"`
	Tags       []string          `json:"tags"`
}

// SendOutcome is the per-recipient result of one channel send.
type SendOutcome struct {
	RecipientID      string
	Delivered        bool
	ChannelMessageID string
	Err              error
}

// DispatchSummary is returned to the caller after one campaign run.
// Delivered equals Sent under the optimistic-delivery model: the channel
// accepting the send is the only acknowledgment this core observes.
type DispatchSummary struct {
	CampaignID string `json:"campaignId"`
	Resolved   int    `json:"resolved"`
	Sent       int    `json:"sent"`
	Delivered  int    `json:"delivered"`
	Failed     int    `json:"failed"`
}

// RunDueSummary aggregates one due-list scan. Processed counts attempted
// campaigns, including ones whose dispatch failed.
type RunDueSummary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
}
