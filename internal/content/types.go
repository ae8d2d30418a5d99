package content

import (
	"errors"
	"time"
)

// Status tracks a draft through the review pipeline.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPosted   Status = "posted"
)

var (
	ErrNotFound     = errors.New("post not found")
	ErrInvalidState = errors.New("post is not in the expected state")
)

type Post struct {
	ID             string
	Text           string
	Platform       string
	Status         Status
	ImageURL       string
	ContextSummary string
	TriggerData    map[string]any
	AutoApproved   bool
	// ScheduledAt is the intended posting time. A zero value means
	// immediately eligible; the store fills it with the insert time.
	ScheduledAt time.Time
	CreatedAt   time.Time
	UpdatedAt      time.Time
	PostedAt       *time.Time
	PostID         string
}

// Signal represents a noteworthy trigger worth drafting a post about.
type Signal struct {
	Kind     string
	Headline string
	Summary  string
	Data     map[string]any
	Score    float64
}
