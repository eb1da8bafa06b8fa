package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
)

// ClaudeClient implements the ModelClient interface using the Anthropic
// API. It backs the text and deep_thinking pool slots.
type ClaudeClient struct {
	cfg    *models.ModelConfig
	client anthropic.Client
	logger arbor.ILogger
}

// NewClaudeClient creates a Claude-backed model client from an active
// binding.
func NewClaudeClient(cfg *models.ModelConfig, logger arbor.ILogger) (*ClaudeClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set via ANTHROPIC_API_KEY or the model config)")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required for kind %s", cfg.Kind)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}

	client := anthropic.NewClient(opts...)

	logger.Debug().
		Str("kind", string(cfg.Kind)).
		Str("model", cfg.ModelName).
		Int("max_tokens", cfg.MaxTokens).
		Msg("Claude model client initialized")

	return &ClaudeClient{
		cfg:    cfg,
		client: client,
		logger: logger,
	}, nil
}

// convertMessages converts []interfaces.Message to Claude MessageParam
// format, extracting the first system message for the System parameter.
func convertMessages(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		switch msg.Role {
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			// Unknown roles default to user
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return claudeMessages, systemText, nil
}

// GenerateText returns the completion for the conversation.
func (c *ClaudeClient) GenerateText(ctx context.Context, messages []interfaces.Message) (string, error) {
	claudeMessages, systemText, err := convertMessages(messages)
	if err != nil {
		return "", fmt.Errorf("failed to convert messages to Claude format: %w", err)
	}

	maxTokens := c.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.ModelName),
		MaxTokens: int64(maxTokens),
		Messages:  claudeMessages,
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.cfg.Temperature))
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	startTime := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	c.logger.Debug().
		Str("model", c.cfg.ModelName).
		Int("response_length", response.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion finished")

	return response.String(), nil
}

// GenerateEmbedding is not supported by Claude models.
func (c *ClaudeClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding generation is not supported by Claude clients")
}

// AnalyzeImage answers the prompt against a single image file.
func (c *ClaudeClient) AnalyzeImage(ctx context.Context, imagePath string, prompt string) (string, error) {
	return c.AnalyzeImages(ctx, []string{imagePath}, prompt)
}

// AnalyzeImages answers the prompt against several image files.
func (c *ClaudeClient) AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error) {
	if len(imagePaths) == 0 {
		return "", fmt.Errorf("at least one image path is required")
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(imagePaths)+1)
	for _, path := range imagePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read image %s: %w", path, err)
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		blocks = append(blocks, anthropic.NewImageBlockBase64(imageMIMEType(path), encoded))
	}
	blocks = append(blocks, anthropic.NewTextBlock(prompt))

	maxTokens := c.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.ModelName),
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", fmt.Errorf("Claude image analysis failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}
	return response.String(), nil
}

// Close releases resources. The Anthropic client needs no explicit cleanup.
func (c *ClaudeClient) Close() error {
	return nil
}

var _ interfaces.ModelClient = (*ClaudeClient)(nil)
