package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/hit-counter/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventHitRecorded EventType = "hit_recorded"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Target    string      `json:"target"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// HitRecordedPayload payload.
type HitRecordedPayload struct {
	Count int64 `json:"count"`
}

// NewHitRecorded builds the event published after a successful increment.
func NewHitRecorded(record domain.HitRecord, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      EventHitRecorded,
		Target:    record.Target,
		Timestamp: at.UTC(),
		Payload:   HitRecordedPayload{Count: record.Count},
	}
}
