package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
)

// Order is the central aggregate: one customer production request tracked
// through the lifecycle state machine. Attachments, analysis results and
// generation attempts are owned by the order and die with it.
type Order struct {
	ID        uuid.UUID             `json:"id"`
	MessageID string                `json:"message_id"`
	ThreadID  string                `json:"thread_id"`
	FromEmail string                `json:"from_email"`
	FromName  string                `json:"from_name,omitempty"`
	Subject   string                `json:"subject"`
	Body      string                `json:"body"`
	Status    constants.OrderStatus `json:"status"`
	AdminNote string                `json:"admin_note,omitempty"`
	Reminders int                   `json:"reminders"`

	Score   float64                 `json:"score"`
	Verdict constants.Producibility `json:"verdict,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
