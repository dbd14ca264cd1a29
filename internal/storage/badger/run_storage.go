package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/eligo/internal/interfaces"
	"github.com/ternarybob/eligo/internal/models"
)

// RunStorage persists terminal run records in BadgerDB.
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a run storage service
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRun upserts a run record
func (s *RunStorage) SaveRun(ctx context.Context, record *models.RunRecord) error {
	if record.ID == "" {
		return fmt.Errorf("run record has no ID")
	}
	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save run %s: %w", record.ID, err)
	}
	s.logger.Debug().Str("run_id", record.ID).Str("status", string(record.Status)).Msg("Run record saved")
	return nil
}

// GetRun retrieves a run record by ID, nil when not found
func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var record models.RunRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &record, nil
}

// ListRuns returns run records newest first, capped at limit (0 means all)
func (s *RunStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []*models.RunRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return records, nil
}
