package runlog

import (
	"context"
	"time"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

type Mode string

const (
	ModeStream   Mode = "stream"
	ModeComplete Mode = "complete"
)

// Run is the audit record of one submitted prompt. It never carries message
// content or credentials, only sizes and the outcome.
type Run struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	SessionID string `gorm:"size:64;index;not null" json:"sessionId"`
	ModelID   string `gorm:"size:128;not null" json:"modelId"`
	Provider  string `gorm:"size:32;not null" json:"provider"`

	Mode    Mode    `gorm:"type:varchar(16);not null" json:"mode"`
	Outcome Outcome `gorm:"type:varchar(16);index;not null" json:"outcome"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	PromptChars   int `json:"promptChars"`
	ResponseChars int `json:"responseChars"`
	Fragments     int `json:"fragments"`

	StartedAt  time.Time `gorm:"index" json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	CreatedAt time.Time `json:"-"`
}

func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Recorder receives finished runs. Implementations must not block the
// caller for long; the transport records after the reply is committed.
type Recorder interface {
	Record(ctx context.Context, run Run) error
}
