package domain

import "time"

// Speaker roles for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Utterance is a single persisted conversation turn.
type Utterance struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Session holds the per-user attributes written on every /start.
// The schema is fixed; optional attributes are empty strings.
type Session struct {
	FirstName string    `json:"first_name"`
	Username  string    `json:"username,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Language  string    `json:"language"`
}
