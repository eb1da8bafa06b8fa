package badger

import (
	"context"
	"fmt"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// jobLogRecord is the stored form of one log line. Sequence keys keep
// append order without coordinating timestamps.
type jobLogRecord struct {
	Seq   uint64 `badgerhold:"key"`
	Entry interfaces.JobLogEntry
}

// JobLogStorage implements the JobLogStorage interface for Badger
type JobLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobLogStorage creates a new JobLogStorage instance
func NewJobLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobLogStorage {
	return &JobLogStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobLogStorage) AppendLog(ctx context.Context, jobID string, entry interfaces.JobLogEntry) error {
	entry.JobID = jobID
	record := jobLogRecord{Entry: entry}
	if err := s.db.Store().Insert(badgerhold.NextSequence(), &record); err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}
	return nil
}

func (s *JobLogStorage) GetLogs(ctx context.Context, jobID string, limit int) ([]interfaces.JobLogEntry, error) {
	query := badgerhold.Where("Entry.JobID").Eq(jobID).SortBy("Seq")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []jobLogRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to get job logs: %w", err)
	}

	entries := make([]interfaces.JobLogEntry, len(records))
	for i := range records {
		entries[i] = records[i].Entry
	}
	return entries, nil
}

func (s *JobLogStorage) DeleteLogs(ctx context.Context, jobID string) error {
	if err := s.db.Store().DeleteMatching(&jobLogRecord{}, badgerhold.Where("Entry.JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete job logs: %w", err)
	}
	return nil
}
