package store

import (
	"encoding/json"
	"time"

	"github.com/atessari/diaforge/pkg/schema"
)

// Session is the persisted representation of one render session.
type Session struct {
	ID          string               `json:"id"`
	Kind        schema.SessionKind   `json:"kind"`
	Status      schema.SessionStatus `json:"status"`
	Source      string               `json:"source,omitempty"`
	ImagePath   string               `json:"image_path,omitempty"`
	Renders     int                  `json:"renders"`
	Repairs     int                  `json:"repairs"`
	Error       json.RawMessage      `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// SessionUpdate carries the mutable fields of a session. Nil pointers leave
// the stored value untouched.
type SessionUpdate struct {
	Status      *schema.SessionStatus
	Source      *string
	ImagePath   *string
	Renders     *int
	Repairs     *int
	Error       json.RawMessage
	CompletedAt *time.Time
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	Status schema.SessionStatus
	Kind   schema.SessionKind
	Limit  int
}

// Event is an immutable entry in the append-only session event log.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
