package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

// Embedding dimension expected by downstream consumers.
const embedDimension = 768

// GeminiClient implements the ModelClient interface using the Google genai
// SDK. It backs the vision and embedding pool slots.
type GeminiClient struct {
	cfg    *models.ModelConfig
	client *genai.Client
	logger arbor.ILogger
}

// NewGeminiClient creates a Gemini-backed model client from an active
// binding.
func NewGeminiClient(ctx context.Context, cfg *models.ModelConfig, logger arbor.ILogger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required (set via GEMINI_API_KEY or the model config)")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required for kind %s", cfg.Kind)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Debug().
		Str("kind", string(cfg.Kind)).
		Str("model", cfg.ModelName).
		Msg("Gemini model client initialized")

	return &GeminiClient{
		cfg:    cfg,
		client: client,
		logger: logger,
	}, nil
}

// GenerateText returns the completion for the conversation.
func (g *GeminiClient) GenerateText(ctx context.Context, messages []interfaces.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty")
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}

	config := &genai.GenerateContentConfig{}
	if g.cfg.Temperature > 0 {
		config.Temperature = genai.Ptr(g.cfg.Temperature)
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.ModelName, contents, config)
	if err != nil {
		return "", fmt.Errorf("Gemini generation failed: %w", err)
	}

	return extractGeminiText(resp)
}

// GenerateEmbedding returns a 768-dimension embedding vector for the text.
func (g *GeminiClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding generation")
	}

	outputDim := int32(embedDimension)
	result, err := g.client.Models.EmbedContent(ctx, g.cfg.ModelName,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &outputDim})
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}
	if embedding == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}
	if len(embedding) != embedDimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", embedDimension, len(embedding))
	}

	return embedding, nil
}

// AnalyzeImage answers the prompt against a single image file.
func (g *GeminiClient) AnalyzeImage(ctx context.Context, imagePath string, prompt string) (string, error) {
	return g.AnalyzeImages(ctx, []string{imagePath}, prompt)
}

// AnalyzeImages answers the prompt against several image files in one call.
func (g *GeminiClient) AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error) {
	if len(imagePaths) == 0 {
		return "", fmt.Errorf("at least one image path is required")
	}

	parts := make([]*genai.Part, 0, len(imagePaths)+1)
	for _, path := range imagePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read image %s: %w", path, err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, imageMIMEType(path)))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	config := &genai.GenerateContentConfig{}
	if g.cfg.Temperature > 0 {
		config.Temperature = genai.Ptr(g.cfg.Temperature)
	}

	startTime := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.ModelName, contents, config)
	if err != nil {
		return "", fmt.Errorf("Gemini image analysis failed: %w", err)
	}

	text, err := extractGeminiText(resp)
	if err != nil {
		return "", err
	}

	g.logger.Debug().
		Str("model", g.cfg.ModelName).
		Int("image_count", len(imagePaths)).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini image analysis finished")

	return text, nil
}

// Close releases resources. The genai client needs no explicit cleanup.
func (g *GeminiClient) Close() error {
	g.client = nil
	return nil
}

func extractGeminiText(resp *genai.GenerateContentResponse) (string, error) {
	var response strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from model")
	}
	return response.String(), nil
}

// imageMIMEType maps a file extension to its MIME type, defaulting to PNG
// since rendered slides are PNGs.
func imageMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

var _ interfaces.ModelClient = (*GeminiClient)(nil)
