package interfaces

import (
	"context"
	"time"
)

// QueueMessage is one unit of work pulled off a queue.
type QueueMessage struct {
	ID      string `json:"id"`
	JobID   string `json:"job_id"`
	Kind    string `json:"kind"`
	Payload []byte `json:"payload,omitempty"`
}

// QueueManager is a durable FIFO-ish queue with visibility timeouts. The
// scheduler acknowledges before execution (early ack): the delete function
// is invoked as soon as a worker claims the message.
type QueueManager interface {
	Enqueue(ctx context.Context, queue string, msg QueueMessage) error

	// Receive pulls the next visible message from the queue, returning the
	// message and a delete function. Returns ErrNoMessage when empty.
	Receive(ctx context.Context, queue string) (*QueueMessage, func() error, error)

	// Extend pushes out the visibility timeout for a claimed message.
	Extend(ctx context.Context, queue, messageID string, d time.Duration) error

	Close() error
}
