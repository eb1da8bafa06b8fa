package status

import (
	"context"
	"sync"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// MemoryChannel is an in-process StatusChannel used by tests and by
// single-node deployments that run without Redis. Same snapshot-then-
// broadcast ordering as the Redis service.
type MemoryChannel struct {
	mu        sync.Mutex
	snapshots map[string]*models.StatusSnapshot
	subs      map[string]map[int]chan *models.StatusSnapshot
	nextSub   int
	closed    bool
}

// NewMemoryChannel creates an empty in-memory status channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		snapshots: make(map[string]*models.StatusSnapshot),
		subs:      make(map[string]map[int]chan *models.StatusSnapshot),
	}
}

func (m *MemoryChannel) Put(ctx context.Context, jobID string, patch models.StatusPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot, ok := m.snapshots[jobID]
	if !ok {
		snapshot = &models.StatusSnapshot{JobID: jobID, Status: models.JobStatusPending}
		m.snapshots[jobID] = snapshot
	}
	snapshot.Apply(patch)

	copied := *snapshot
	for _, ch := range m.subs[jobID] {
		select {
		case ch <- &copied:
		default: // Slow subscriber drops deltas; the snapshot catches it up.
		}
	}
	return nil
}

func (m *MemoryChannel) Get(ctx context.Context, jobID string) (*models.StatusSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot, ok := m.snapshots[jobID]
	if !ok {
		return nil, nil
	}
	copied := *snapshot
	return &copied, nil
}

func (m *MemoryChannel) Subscribe(ctx context.Context, jobID string) (<-chan *models.StatusSnapshot, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++

	ch := make(chan *models.StatusSnapshot, 16)
	if m.subs[jobID] == nil {
		m.subs[jobID] = make(map[int]chan *models.StatusSnapshot)
	}
	m.subs[jobID][id] = ch

	stop := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[jobID][id]; ok {
			delete(m.subs[jobID], id)
			close(sub)
		}
	}

	return ch, stop, nil
}

func (m *MemoryChannel) Delete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, jobID)
	return nil
}

func (m *MemoryChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for jobID, subs := range m.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(m.subs, jobID)
	}
	return nil
}

var _ interfaces.StatusChannel = (*MemoryChannel)(nil)
