package history

import (
	"context"
	"time"
)

// EventType defines the kind of device lifecycle event.
type EventType string

const (
	EventUpdateStarted   EventType = "update_started"
	EventUpdateCommitted EventType = "update_committed"
	EventUpdateFailed    EventType = "update_failed"
	EventUpdateAborted   EventType = "update_aborted"
	EventRollback        EventType = "rollback"
	EventConfirm         EventType = "confirm"
	EventSample          EventType = "sample"
)

// Event is one exported record: an update lifecycle transition or a
// telemetry sample.
type Event struct {
	Type        EventType `json:"type"`
	OccurredAt  time.Time `json:"occurred_at"`
	DeviceID    string    `json:"device_id"`
	SessionID   string    `json:"session_id,omitempty"`
	Slot        string    `json:"slot,omitempty"`
	Version     string    `json:"version,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Sink is a destination for history events (local journal or fleet backend).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Fanout delivers e to every sink, returning the first error.
func Fanout(ctx context.Context, sinks []Sink, e Event) error {
	var firstErr error
	for _, s := range sinks {
		if err := s.Send(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
