package interfaces

import (
	"context"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

// Message is one turn in a model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelClient is the narrow client contract for one model kind. Text and
// deep-thinking clients implement GenerateText; vision clients implement
// the image methods; embedding clients implement GenerateEmbedding. The
// others return an unsupported error.
type ModelClient interface {
	// GenerateText returns the completion for the conversation.
	GenerateText(ctx context.Context, messages []Message) (string, error)

	// GenerateEmbedding returns the embedding vector for the text.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// AnalyzeImage answers the prompt against a single image file.
	AnalyzeImage(ctx context.Context, imagePath string, prompt string) (string, error)

	// AnalyzeImages answers the prompt against several image files.
	AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error)

	// Close releases the client's connections. Safe and idempotent.
	Close() error
}

// ModelPool hands out the per-kind singleton clients, enforcing the
// configured inter-request interval before each call is issued.
type ModelPool interface {
	// Client returns the lazily constructed client for the kind.
	Client(ctx context.Context, kind models.ModelKind) (ModelClient, error)

	// Invalidate discards the cached client for the kind; in-flight
	// requests on the old client run to completion.
	Invalidate(kind models.ModelKind)

	// Close closes every cached client. Safe to call more than once.
	Close() error
}

// ConfigRegistry serves the active model bindings and invalidates pooled
// clients when a binding changes.
type ConfigRegistry interface {
	Active(ctx context.Context, kind models.ModelKind) (*models.ModelConfig, error)
	Update(ctx context.Context, cfg *models.ModelConfig) error
	List(ctx context.Context) ([]*models.ModelConfig, error)
}
