package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, id string, update SessionUpdate) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error)
	// PruneSessions deletes terminal sessions completed before the cutoff
	// together with their events, returning how many sessions went away.
	PruneSessions(ctx context.Context, cutoff time.Time) (int64, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, sessionID string) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}

// EventAppender is the slice of Store the pipeline needs to emit events.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *Event) error
}
