package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CheckStatusPending    = "pending"
	CheckStatusProcessing = "processing"
	CheckStatusCompleted  = "completed"
	CheckStatusCancelled  = "cancelled"
)

// Check is one compliance question: does the drawing satisfy one code section.
// ManualStatus, when set, is an engineer's override and acts as a cancellation
// signal for any queued or in-flight analysis of the check.
type Check struct {
	ID             uuid.UUID `db:"id"               json:"id"`
	CodeSectionKey string    `db:"code_section_key" json:"code_section_key"`
	Status         string    `db:"status"           json:"status"`
	ManualStatus   *string   `db:"manual_status"    json:"manual_status,omitempty"`
	CreatedAt      time.Time `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"       json:"updated_at"`
}

// Cancelled reports whether the check carries an external cancellation signal.
func (c *Check) Cancelled() bool {
	return c.Status == CheckStatusCancelled || (c.ManualStatus != nil && *c.ManualStatus != "")
}

// CodeSection is one building-code section: summary text plus the individual
// requirement paragraphs extracted from it.
type CodeSection struct {
	Key          string    `db:"key"          json:"key"`
	Title        string    `db:"title"        json:"title"`
	Text         string    `db:"text"         json:"text"`
	Requirements []string  `db:"requirements" json:"requirements"`
	CreatedAt    time.Time `db:"created_at"   json:"created_at"`
}
