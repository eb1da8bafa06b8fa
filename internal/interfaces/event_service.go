package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobStatusChange EventType = "job_status_change"
	EventJobCancelled    EventType = "job_cancelled"
	EventConfigChanged   EventType = "config_changed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the in-process pub/sub event bus. The status
// channel carries per-job progress to clients; this bus carries
// cross-service signals (cancellation flags, config invalidation).
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
