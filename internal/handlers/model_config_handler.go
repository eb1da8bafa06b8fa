package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// ModelConfigHandler is the admin surface for model bindings. Keys are
// masked on the way out; a masked key on the way in keeps the stored one.
type ModelConfigHandler struct {
	registry interfaces.ConfigRegistry
	logger   arbor.ILogger
}

func NewModelConfigHandler(registry interfaces.ConfigRegistry, logger arbor.ILogger) *ModelConfigHandler {
	return &ModelConfigHandler{
		registry: registry,
		logger:   logger,
	}
}

// ListModelsHandler handles GET /api/models.
func (h *ModelConfigHandler) ListModelsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	configs, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to list model configs")
		WriteError(w, http.StatusInternalServerError, "failed to list model configs")
		return
	}

	sanitized := make([]models.ModelConfig, 0, len(configs))
	for _, cfg := range configs {
		sanitized = append(sanitized, cfg.Sanitized())
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"models": sanitized,
		"count":  len(sanitized),
	})
}

// GetModelHandler handles GET /api/models/{kind}.
func (h *ModelConfigHandler) GetModelHandler(w http.ResponseWriter, r *http.Request, kind string) {
	cfg, err := h.registry.Active(r.Context(), models.ModelKind(kind))
	if err != nil {
		WriteError(w, http.StatusNotFound, "no binding for model kind: "+kind)
		return
	}

	WriteJSON(w, http.StatusOK, cfg.Sanitized())
}

// UpdateModelHandler handles PUT /api/models/{kind}.
func (h *ModelConfigHandler) UpdateModelHandler(w http.ResponseWriter, r *http.Request, kind string) {
	var cfg models.ModelConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		WriteError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	cfg.Kind = models.ModelKind(kind)

	if err := h.registry.Update(r.Context(), &cfg); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, cfg.Sanitized())
}
