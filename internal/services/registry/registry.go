package registry

import (
	"context"
	"fmt"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/common"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/ternarybob/arbor"
)

// Registry serves the active model bindings from storage. Updates persist
// the new binding and publish a config_changed event; the app wires that
// event to pool invalidation so cached clients are rebuilt lazily.
type Registry struct {
	storage interfaces.ModelConfigStorage
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewRegistry creates a registry over the model config table.
func NewRegistry(storage interfaces.ModelConfigStorage, events interfaces.EventService, logger arbor.ILogger) *Registry {
	return &Registry{
		storage: storage,
		events:  events,
		logger:  logger,
	}
}

// Seed writes bindings from the file config for kinds that have no stored
// entry yet. Runs once at startup; stored bindings always win.
func (r *Registry) Seed(ctx context.Context, cfg *common.ModelsConfig) error {
	seeds := map[models.ModelKind]common.ModelBinding{
		models.ModelText:         cfg.Text,
		models.ModelVision:       cfg.Vision,
		models.ModelDeepThinking: cfg.DeepThinking,
		models.ModelEmbedding:    cfg.Embedding,
	}

	for kind, seed := range seeds {
		if _, err := r.storage.GetConfig(ctx, kind); err == nil {
			continue
		}
		if seed.Model == "" {
			continue
		}

		binding := &models.ModelConfig{
			Kind:        kind,
			Provider:    seed.Provider,
			APIKey:      seed.APIKey,
			APIBase:     seed.APIBase,
			ModelName:   seed.Model,
			MaxTokens:   seed.MaxTokens,
			Temperature: seed.Temperature,
		}
		if err := r.storage.PutConfig(ctx, binding); err != nil {
			return fmt.Errorf("failed to seed model config for %s: %w", kind, err)
		}
		r.logger.Info().Str("kind", string(kind)).Str("model", seed.Model).Msg("Seeded model binding")
	}
	return nil
}

// Active returns the stored binding for the kind.
func (r *Registry) Active(ctx context.Context, kind models.ModelKind) (*models.ModelConfig, error) {
	return r.storage.GetConfig(ctx, kind)
}

// Update persists a binding and publishes config_changed. Running jobs
// keep their already-acquired clients; only future acquisitions see the
// new binding.
func (r *Registry) Update(ctx context.Context, cfg *models.ModelConfig) error {
	if cfg.Provider != "claude" && cfg.Provider != "gemini" {
		return fmt.Errorf("unknown model provider: %s", cfg.Provider)
	}
	if cfg.ModelName == "" {
		return fmt.Errorf("model_name is required")
	}

	// An update without a key keeps the stored one.
	if cfg.APIKey == "" || cfg.APIKey == "****" {
		if existing, err := r.storage.GetConfig(ctx, cfg.Kind); err == nil {
			cfg.APIKey = existing.APIKey
		}
	}

	if err := r.storage.PutConfig(ctx, cfg); err != nil {
		return err
	}

	r.logger.Info().
		Str("kind", string(cfg.Kind)).
		Str("provider", cfg.Provider).
		Str("model", cfg.ModelName).
		Msg("Model binding updated")

	return r.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventConfigChanged,
		Payload: cfg.Kind,
	})
}

// List returns every stored binding.
func (r *Registry) List(ctx context.Context) ([]*models.ModelConfig, error) {
	return r.storage.ListConfigs(ctx)
}

var _ interfaces.ConfigRegistry = (*Registry)(nil)
