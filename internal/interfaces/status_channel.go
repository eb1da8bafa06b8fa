package interfaces

import (
	"context"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// StatusChannel is the live progress channel for jobs: a durable snapshot
// under status:{id} with TTL plus a best-effort per-job broadcast on
// updates:{id}. Every update writes the snapshot first, then broadcasts,
// so a late subscriber that reads the snapshot before consuming deltas
// never misses state.
type StatusChannel interface {
	// Put merges the patch into the stored snapshot, refreshes its TTL and
	// then publishes the merged snapshot on the job's channel.
	Put(ctx context.Context, jobID string, patch models.StatusPatch) error

	// Get returns the current snapshot, or nil when none exists.
	Get(ctx context.Context, jobID string) (*models.StatusSnapshot, error)

	// Subscribe returns a delivery stream for the job's updates and a stop
	// function. Delivery is at-most-once; the snapshot is the catch-up
	// mechanism.
	Subscribe(ctx context.Context, jobID string) (<-chan *models.StatusSnapshot, func(), error)

	// Delete removes the snapshot (used by tests and maintenance).
	Delete(ctx context.Context, jobID string) error

	// Close releases the underlying connections.
	Close() error
}
