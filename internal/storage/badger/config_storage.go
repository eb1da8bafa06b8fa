package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// ModelConfigStorage implements the ModelConfigStorage interface for Badger.
// One record per model kind; updates replace the whole binding.
type ModelConfigStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewModelConfigStorage creates a new ModelConfigStorage instance
func NewModelConfigStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ModelConfigStorage {
	return &ModelConfigStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ModelConfigStorage) GetConfig(ctx context.Context, kind models.ModelKind) (*models.ModelConfig, error) {
	var cfg models.ModelConfig
	if err := s.db.Store().Get(kind, &cfg); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("no model config for kind: %s", kind)
		}
		return nil, fmt.Errorf("failed to get model config: %w", err)
	}
	return &cfg, nil
}

func (s *ModelConfigStorage) PutConfig(ctx context.Context, cfg *models.ModelConfig) error {
	if cfg.Kind == "" {
		return fmt.Errorf("model kind is required")
	}
	cfg.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(cfg.Kind, cfg); err != nil {
		return fmt.Errorf("failed to save model config: %w", err)
	}

	s.logger.Debug().Str("kind", string(cfg.Kind)).Str("model", cfg.ModelName).Msg("Model config saved")
	return nil
}

func (s *ModelConfigStorage) ListConfigs(ctx context.Context) ([]*models.ModelConfig, error) {
	var configs []models.ModelConfig
	if err := s.db.Store().Find(&configs, badgerhold.Where("Kind").Ne(models.ModelKind(""))); err != nil {
		return nil, fmt.Errorf("failed to list model configs: %w", err)
	}

	result := make([]*models.ModelConfig, len(configs))
	for i := range configs {
		result[i] = &configs[i]
	}
	return result, nil
}
