package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/common"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// Pool hands out per-kind singleton model clients. Each kind carries a
// rate limiter enforcing the configured minimum interval between request
// starts, and every call retries transient provider failures.
type Pool struct {
	registry interfaces.ConfigRegistry
	cfg      *common.ModelsConfig
	retry    *RetryConfig
	logger   arbor.ILogger

	mu       sync.Mutex
	clients  map[models.ModelKind]interfaces.ModelClient
	limiters map[models.ModelKind]*rate.Limiter
	closed   bool
}

// NewPool creates an empty pool; clients are built lazily on first use.
func NewPool(registry interfaces.ConfigRegistry, cfg *common.ModelsConfig, logger arbor.ILogger) *Pool {
	retry := NewDefaultRetryConfig()
	if cfg.RetryMax > 0 {
		retry.MaxRetries = cfg.RetryMax
	}
	if backoff := common.ParseDuration(cfg.RetryBackoff, 0); backoff > 0 {
		retry.InitialBackoff = backoff
	}

	return &Pool{
		registry: registry,
		cfg:      cfg,
		retry:    retry,
		logger:   logger,
		clients:  make(map[models.ModelKind]interfaces.ModelClient),
		limiters: make(map[models.ModelKind]*rate.Limiter),
	}
}

// Client returns the lazily constructed client for the kind, wrapped with
// rate limiting and retry.
func (p *Pool) Client(ctx context.Context, kind models.ModelKind) (interfaces.ModelClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("model pool is closed")
	}

	if client, ok := p.clients[kind]; ok {
		return client, nil
	}

	binding, err := p.registry.Active(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("no active model binding for kind %s: %w", kind, err)
	}

	var raw interfaces.ModelClient
	switch binding.Provider {
	case "claude":
		raw, err = NewClaudeClient(binding, p.logger)
	case "gemini":
		raw, err = NewGeminiClient(ctx, binding, p.logger)
	default:
		err = fmt.Errorf("unknown model provider: %s", binding.Provider)
	}
	if err != nil {
		return nil, err
	}

	client := &managedClient{
		inner:   raw,
		limiter: p.limiter(kind),
		retry:   p.retry,
	}
	p.clients[kind] = client

	p.logger.Info().
		Str("kind", string(kind)).
		Str("provider", binding.Provider).
		Str("model", binding.ModelName).
		Msg("Model client created")

	return client, nil
}

// limiter returns the per-kind rate limiter, created from the configured
// inter-request interval. Callers hold p.mu.
func (p *Pool) limiter(kind models.ModelKind) *rate.Limiter {
	if lim, ok := p.limiters[kind]; ok {
		return lim
	}

	interval := common.ParseDuration(p.binding(kind).RequestInterval, time.Second)
	lim := rate.NewLimiter(rate.Every(interval), 1)
	p.limiters[kind] = lim
	return lim
}

func (p *Pool) binding(kind models.ModelKind) *common.ModelBinding {
	switch kind {
	case models.ModelVision:
		return &p.cfg.Vision
	case models.ModelDeepThinking:
		return &p.cfg.DeepThinking
	case models.ModelEmbedding:
		return &p.cfg.Embedding
	default:
		return &p.cfg.Text
	}
}

// Invalidate discards the cached client for the kind. In-flight requests
// on the old client run to completion; the next Client call rebuilds.
func (p *Pool) Invalidate(kind models.ModelKind) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[kind]; ok {
		delete(p.clients, kind)
		go client.Close()
		p.logger.Debug().Str("kind", string(kind)).Msg("Model client invalidated")
	}
}

// Reset closes and discards every cached client without closing the pool;
// the next Client call rebuilds lazily. Workers call this after each job so
// provider connections never outlive the task that opened them.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	for kind, client := range p.clients {
		if err := client.Close(); err != nil {
			p.logger.Debug().Err(err).Str("kind", string(kind)).Msg("Failed to close model client")
		}
		delete(p.clients, kind)
	}
}

// Close closes every cached client. Safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for kind, client := range p.clients {
		if err := client.Close(); err != nil {
			p.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to close model client")
		}
		delete(p.clients, kind)
	}
	return nil
}

var _ interfaces.ModelPool = (*Pool)(nil)

// managedClient wraps a raw client with the pool's inter-request interval
// and transient-error retry. The limiter gates request starts only; a
// request's duration does not delay the next slot.
type managedClient struct {
	inner   interfaces.ModelClient
	limiter *rate.Limiter
	retry   *RetryConfig
}

func (m *managedClient) GenerateText(ctx context.Context, messages []interfaces.Message) (string, error) {
	return withRetry(ctx, m.retry, func() (string, error) {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", err
		}
		return m.inner.GenerateText(ctx, messages)
	})
}

func (m *managedClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return withRetry(ctx, m.retry, func() ([]float32, error) {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return m.inner.GenerateEmbedding(ctx, text)
	})
}

func (m *managedClient) AnalyzeImage(ctx context.Context, imagePath string, prompt string) (string, error) {
	return withRetry(ctx, m.retry, func() (string, error) {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", err
		}
		return m.inner.AnalyzeImage(ctx, imagePath, prompt)
	})
}

func (m *managedClient) AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error) {
	return withRetry(ctx, m.retry, func() (string, error) {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", err
		}
		return m.inner.AnalyzeImages(ctx, imagePaths, prompt)
	})
}

func (m *managedClient) Close() error {
	return m.inner.Close()
}
