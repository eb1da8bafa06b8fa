package status

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/common"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"
)

const (
	snapshotKeyPrefix = "status:"
	updatesKeyPrefix  = "updates:"
)

// Service is the Redis-backed status channel. Snapshots live under
// status:{id} with a TTL; merged snapshots are published on
// updates:{id} after every write. Snapshot-then-publish ordering is
// what lets a subscriber read the snapshot for catch-up without missing
// state between it and the first delta.
type Service struct {
	client *redis.Client
	ttl    time.Duration
	logger arbor.ILogger

	// Serializes read-merge-write per process.
	mu sync.Mutex
}

// NewService connects to Redis and verifies the connection.
func NewService(config *common.RedisConfig, logger arbor.ILogger) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	logger.Info().Str("addr", config.Addr).Msg("Status channel connected to Redis")

	return &Service{
		client: client,
		ttl:    common.ParseDuration(config.SnapshotTTL, 24*time.Hour),
		logger: logger,
	}, nil
}

// Put merges the patch into the stored snapshot, refreshes the TTL, then
// publishes the merged snapshot on the job's update channel.
func (s *Service) Put(ctx context.Context, jobID string, patch models.StatusPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.get(ctx, jobID)
	if err != nil {
		return err
	}
	if snapshot == nil {
		snapshot = &models.StatusSnapshot{JobID: jobID, Status: models.JobStatusPending}
	}
	snapshot.Apply(patch)

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal status snapshot: %w", err)
	}

	if err := s.client.Set(ctx, snapshotKeyPrefix+jobID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write status snapshot: %w", err)
	}

	// Broadcast is best-effort; the snapshot is already durable.
	if err := s.client.Publish(ctx, updatesKeyPrefix+jobID, data).Err(); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to publish status update")
	}

	return nil
}

// Get returns the current snapshot, or nil when none exists.
func (s *Service) Get(ctx context.Context, jobID string) (*models.StatusSnapshot, error) {
	return s.get(ctx, jobID)
}

func (s *Service) get(ctx context.Context, jobID string) (*models.StatusSnapshot, error) {
	data, err := s.client.Get(ctx, snapshotKeyPrefix+jobID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status snapshot: %w", err)
	}

	var snapshot models.StatusSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status snapshot: %w", err)
	}
	return &snapshot, nil
}

// Subscribe returns a stream of merged snapshots for the job plus a stop
// function. Messages that fail to decode are dropped.
func (s *Service) Subscribe(ctx context.Context, jobID string) (<-chan *models.StatusSnapshot, func(), error) {
	pubsub := s.client.Subscribe(ctx, updatesKeyPrefix+jobID)

	// Force the subscription onto the wire before returning so callers can
	// read the snapshot afterwards without a gap.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to job updates: %w", err)
	}

	out := make(chan *models.StatusSnapshot, 16)
	done := make(chan struct{})

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var snapshot models.StatusSnapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snapshot); err != nil {
					s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Dropping malformed status update")
					continue
				}
				select {
				case out <- &snapshot:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}

	return out, stop, nil
}

// Delete removes the snapshot.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, snapshotKeyPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("failed to delete status snapshot: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *Service) Close() error {
	return s.client.Close()
}

var _ interfaces.StatusChannel = (*Service)(nil)
