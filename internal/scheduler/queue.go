package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
)

// ErrNoMessage is returned by Receive when the queue holds no visible message.
var ErrNoMessage = errors.New("no message")

// queueRecord is the internal envelope stored in Badger.
type queueRecord struct {
	ID           string                  `json:"id"`
	Body         interfaces.QueueMessage `json:"body"`
	EnqueuedAt   time.Time               `json:"enqueued_at"`
	VisibleAt    time.Time               `json:"visible_at"`
	ReceiveCount int                     `json:"receive_count"`
}

// BadgerQueue is a persistent multi-queue over BadgerDB. Each queue keeps
// message bodies under queue:{name}:msg:{id} and a visibility index under
// queue:{name}:index:{visibleAt}:{id}; the index timestamp is zero-padded
// nanoseconds so lexical iteration order is delivery order.
type BadgerQueue struct {
	db                *badger.DB
	visibilityTimeout time.Duration
	maxReceive        int
}

// NewBadgerQueue creates a queue manager over an open Badger database.
func NewBadgerQueue(db *badger.DB, visibilityTimeout time.Duration, maxReceive int) (*BadgerQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}
	return &BadgerQueue{
		db:                db,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
	}, nil
}

// Enqueue appends a message to the named queue, immediately visible.
func (q *BadgerQueue) Enqueue(ctx context.Context, queue string, msg interfaces.QueueMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	record := queueRecord{
		ID:         msg.ID,
		Body:       msg,
		EnqueuedAt: time.Now(),
		VisibleAt:  time.Now(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(q.msgKey(queue, record.ID), data); err != nil {
			return err
		}
		return txn.Set(q.indexKey(queue, record.VisibleAt, record.ID), []byte{})
	})
}

// Receive claims the next visible message. The returned delete function
// acknowledges it; until then the message becomes invisible for the
// visibility timeout and redelivers if unacknowledged. Messages that
// exceed the receive budget are dropped to break poison loops.
func (q *BadgerQueue) Receive(ctx context.Context, queue string) (*interfaces.QueueMessage, func() error, error) {
	var record queueRecord
	var msgID string

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(q.indexPrefix(queue))
		now := time.Now()
		var oldIndexKey []byte
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := q.parseIndexKey(queue, key)
			if err != nil {
				continue
			}
			if ts.After(now) {
				// Index keys sort by timestamp; nothing later is visible either.
				break
			}

			item, err := txn.Get(q.msgKey(queue, id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					// Orphaned index entry.
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}

			if record.ReceiveCount >= q.maxReceive {
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(q.msgKey(queue, id)); err != nil {
					return err
				}
				continue
			}

			found = true
			msgID = id
			oldIndexKey = key
			break
		}

		if !found {
			return ErrNoMessage
		}

		record.ReceiveCount++
		record.VisibleAt = time.Now().Add(q.visibilityTimeout)

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := txn.Set(q.msgKey(queue, msgID), data); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(q.indexKey(queue, record.VisibleAt, msgID), []byte{})
	})
	if err != nil {
		return nil, nil, err
	}

	deleteFn := func() error {
		return q.delete(queue, msgID)
	}
	msg := record.Body
	msg.ID = msgID
	return &msg, deleteFn, nil
}

// Extend pushes a claimed message's visibility deadline out by d.
func (q *BadgerQueue) Extend(ctx context.Context, queue, messageID string, d time.Duration) error {
	return q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(q.msgKey(queue, messageID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("message not found: %s", messageID)
			}
			return err
		}

		var record queueRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}

		oldIndexKey := q.indexKey(queue, record.VisibleAt, messageID)
		record.VisibleAt = time.Now().Add(d)

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := txn.Set(q.msgKey(queue, messageID), data); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(q.indexKey(queue, record.VisibleAt, messageID), []byte{})
	})
}

// Close is a no-op; the Badger handle is owned by the storage manager.
func (q *BadgerQueue) Close() error {
	return nil
}

func (q *BadgerQueue) delete(queue, messageID string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(q.msgKey(queue, messageID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil // Already acknowledged.
			}
			return err
		}

		var record queueRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}

		if err := txn.Delete(q.indexKey(queue, record.VisibleAt, messageID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Delete(q.msgKey(queue, messageID))
	})
}

func (q *BadgerQueue) msgKey(queue, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", queue, id))
}

func (q *BadgerQueue) indexPrefix(queue string) string {
	return fmt.Sprintf("queue:%s:index:", queue)
}

func (q *BadgerQueue) indexKey(queue string, visibleAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", q.indexPrefix(queue), visibleAt.UnixNano(), id))
}

func (q *BadgerQueue) parseIndexKey(queue string, key []byte) (time.Time, string, error) {
	rest := strings.TrimPrefix(string(key), q.indexPrefix(queue))
	ts, id, ok := strings.Cut(rest, ":")
	if !ok {
		return time.Time{}, "", fmt.Errorf("malformed index key: %s", key)
	}
	var nanos int64
	if _, err := fmt.Sscanf(ts, "%d", &nanos); err != nil {
		return time.Time{}, "", fmt.Errorf("malformed index timestamp: %s", ts)
	}
	return time.Unix(0, nanos), id, nil
}

var _ interfaces.QueueManager = (*BadgerQueue)(nil)
