package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Redis       RedisConfig      `toml:"redis"`
	Queue       QueueConfig      `toml:"queue"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Models      ModelsConfig     `toml:"models"`
	Pipeline    PipelineConfig   `toml:"pipeline"`
	Validation  ValidationConfig `toml:"validation"`
	Render      RenderConfig     `toml:"render"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger     BadgerConfig `toml:"badger"`
	OutputDir  string       `toml:"output_dir"`   // Final artifacts: {output_dir}/{job_id}/{filename}
	CacheDir   string       `toml:"cache_dir"`    // Stage artifact cache: {cache_dir}/{stage}/{key}
	TemplateDir string      `toml:"template_dir"` // Template deck files
	WorkDir    string       `toml:"work_dir"`     // Per-job scratch (renders, temp saves)
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// RedisConfig holds the status channel connection settings.
type RedisConfig struct {
	Addr        string `toml:"addr"`         // host:port
	Password    string `toml:"password"`
	DB          int    `toml:"db"`
	SnapshotTTL string `toml:"snapshot_ttl"` // e.g. "24h" - status:{id} key TTL
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g. "500ms" - how often workers poll
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "5m"
	MaxReceive        int    `toml:"max_receive"`        // Max deliveries before a message is dropped
}

// SchedulerConfig bounds worker pools and per-task time budgets.
type SchedulerConfig struct {
	GenerateWorkers    int    `toml:"generate_workers"`    // Worker count on the generate queue
	AnalyzeWorkers     int    `toml:"analyze_workers"`     // Worker count on the analyze queue
	GenerateRateLimit  string `toml:"generate_rate_limit"` // Min interval between generate starts, e.g. "500ms"
	SoftTimeout        string `toml:"soft_timeout"`        // Warn threshold, e.g. "25m"
	HardTimeout        string `toml:"hard_timeout"`        // Terminate threshold, e.g. "30m"
	HeartbeatInterval  string `toml:"heartbeat_interval"`  // Worker heartbeat stamp cadence
	StaleSweepSchedule string `toml:"stale_sweep_schedule"` // Cron spec for the stale-job sweep
	StaleAfter         string `toml:"stale_after"`          // Heartbeat age that marks a job crashed
}

// ModelsConfig holds per-kind client defaults. Active bindings live in the
// config table; these act as seed values on first start.
type ModelsConfig struct {
	Text         ModelBinding `toml:"text"`
	Vision       ModelBinding `toml:"vision"`
	DeepThinking ModelBinding `toml:"deep_thinking"`
	Embedding    ModelBinding `toml:"embedding"`
	RetryMax     int          `toml:"retry_max"`     // Transient-error retry budget per call
	RetryBackoff string       `toml:"retry_backoff"` // Initial backoff, e.g. "2s"
}

// ModelBinding seeds one model kind.
type ModelBinding struct {
	Provider        string  `toml:"provider"` // "claude" or "gemini"
	APIKey          string  `toml:"api_key"`
	APIBase         string  `toml:"api_base"`
	Model           string  `toml:"model"`
	MaxTokens       int     `toml:"max_tokens"`
	Temperature     float32 `toml:"temperature"`
	RequestInterval string  `toml:"request_interval"` // Min inter-request gap, e.g. "1s"
}

// PipelineConfig tunes the stage engine.
type PipelineConfig struct {
	CacheEnabled bool   `toml:"cache_enabled"`
	CacheMaxAge  string `toml:"cache_max_age"` // Prune entries older than this, e.g. "168h"
}

// ValidationConfig bounds the validation loop.
type ValidationConfig struct {
	Enabled       bool `toml:"enabled"`
	MaxIterations int  `toml:"max_iterations"`
	MaxWorkers    int  `toml:"max_workers"` // Concurrent slide analyses; repairs stay serial
}

// RenderConfig tunes the chromedp slide renderer.
type RenderConfig struct {
	Width   int    `toml:"width"`   // Slide pixel width (default 1280)
	Height  int    `toml:"height"`  // Slide pixel height (default 720)
	Timeout string `toml:"timeout"` // Per-batch render timeout, e.g. "60s"
}

// WebSocketConfig contains configuration for the per-job stream endpoint.
type WebSocketConfig struct {
	PingInterval string `toml:"ping_interval"` // Keepalive ping cadence, e.g. "30s"
	WriteTimeout string `toml:"write_timeout"` // Per-message write deadline
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings belong in deckgen.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/db",
			},
			OutputDir:   "./data/output",
			CacheDir:    "./data/cache",
			TemplateDir: "./templates",
			WorkDir:     "./data/work",
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DB:          0,
			SnapshotTTL: "24h",
		},
		Queue: QueueConfig{
			PollInterval:      "500ms",
			VisibilityTimeout: "5m",
			MaxReceive:        3,
		},
		Scheduler: SchedulerConfig{
			GenerateWorkers:    2,
			AnalyzeWorkers:     1,
			GenerateRateLimit:  "500ms", // 2/s cap on generate starts
			SoftTimeout:        "25m",
			HardTimeout:        "30m",
			HeartbeatInterval:  "15s",
			StaleSweepSchedule: "0 * * * * *", // Every minute
			StaleAfter:         "2m",
		},
		Models: ModelsConfig{
			Text: ModelBinding{
				Provider:        "claude",
				Model:           "claude-haiku-3-5-20241022",
				MaxTokens:       8192,
				Temperature:     0.7,
				RequestInterval: "1s",
			},
			Vision: ModelBinding{
				Provider:        "gemini",
				Model:           "gemini-3-flash-preview",
				MaxTokens:       8192,
				Temperature:     0.2,
				RequestInterval: "4s",
			},
			DeepThinking: ModelBinding{
				Provider:        "claude",
				Model:           "claude-sonnet-4-20250514",
				MaxTokens:       16384,
				Temperature:     0.7,
				RequestInterval: "2s",
			},
			Embedding: ModelBinding{
				Provider:        "gemini",
				Model:           "gemini-embedding-001",
				RequestInterval: "500ms",
			},
			RetryMax:     3,
			RetryBackoff: "2s",
		},
		Pipeline: PipelineConfig{
			CacheEnabled: true,
			CacheMaxAge:  "168h",
		},
		Validation: ValidationConfig{
			Enabled:       true,
			MaxIterations: 3,
			MaxWorkers:    4,
		},
		Render: RenderConfig{
			Width:   1280,
			Height:  720,
			Timeout: "60s",
		},
		WebSocket: WebSocketConfig{
			PingInterval: "30s",
			WriteTimeout: "10s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override
// earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DECKGEN_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("DECKGEN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("DECKGEN_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if addr := os.Getenv("DECKGEN_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if pw := os.Getenv("DECKGEN_REDIS_PASSWORD"); pw != "" {
		config.Redis.Password = pw
	}

	if path := os.Getenv("DECKGEN_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if dir := os.Getenv("DECKGEN_OUTPUT_DIR"); dir != "" {
		config.Storage.OutputDir = dir
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		if config.Models.Text.Provider == "claude" && config.Models.Text.APIKey == "" {
			config.Models.Text.APIKey = key
		}
		if config.Models.DeepThinking.Provider == "claude" && config.Models.DeepThinking.APIKey == "" {
			config.Models.DeepThinking.APIKey = key
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if config.Models.Vision.Provider == "gemini" && config.Models.Vision.APIKey == "" {
			config.Models.Vision.APIKey = key
		}
		if config.Models.Embedding.Provider == "gemini" && config.Models.Embedding.APIKey == "" {
			config.Models.Embedding.APIKey = key
		}
	}

	if level := os.Getenv("DECKGEN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if iters := os.Getenv("DECKGEN_VALIDATION_MAX_ITERATIONS"); iters != "" {
		if n, err := strconv.Atoi(iters); err == nil && n > 0 {
			config.Validation.MaxIterations = n
		}
	}
	if workers := os.Getenv("DECKGEN_VALIDATION_MAX_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			config.Validation.MaxWorkers = n
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDuration parses a duration string falling back to a default when
// the value is empty or malformed.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
