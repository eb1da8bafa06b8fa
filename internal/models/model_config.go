package models

import "time"

// ModelKind identifies one logical client in the model pool.
type ModelKind string

const (
	ModelText         ModelKind = "text"
	ModelVision       ModelKind = "vision"
	ModelDeepThinking ModelKind = "deep_thinking"
	ModelEmbedding    ModelKind = "embedding"
)

// ModelKinds lists every pool slot in a stable order.
var ModelKinds = []ModelKind{ModelText, ModelVision, ModelDeepThinking, ModelEmbedding}

// ModelConfig is the active binding for one model kind. At most one active
// entry per kind; updates invalidate cached clients but leave in-flight
// requests untouched.
type ModelConfig struct {
	Kind        ModelKind `json:"kind" badgerhold:"key"`
	Provider    string    `json:"provider"`
	APIKey      string    `json:"api_key"`
	APIBase     string    `json:"api_base,omitempty"`
	ModelName   string    `json:"model_name"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Sanitized returns a copy safe to serve over the admin API.
func (c ModelConfig) Sanitized() ModelConfig {
	out := c
	if out.APIKey != "" {
		out.APIKey = "****"
	}
	return out
}
