package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the ComplyCheck server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	AI       AIConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	// Name is the queue the processor polls.
	Name string
	// MaxJobsPerRun caps how many jobs one processor pass dequeues.
	MaxJobsPerRun int
	// MaxRunDuration is the wall-clock budget for one pass, chosen to leave
	// margin under the host's execution-time ceiling.
	MaxRunDuration time.Duration
	// StaleAfter is how long a job may sit in processing before the sweeper
	// requeues it.
	StaleAfter time.Duration
	// PollInterval > 0 enables the internal ticker that runs the processor
	// without an external trigger.
	PollInterval time.Duration
	// RequestsPerMinute rate-limits the enqueue endpoint.
	RequestsPerMinute int
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Ollama           OllamaConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

var validProviders = map[string]bool{
	"ollama":    true,
	"openai":    true,
	"anthropic": true,
}

// Load reads configuration from environment variables and returns a validated
// Config. A .env file in the working directory is loaded first if present.
// Returns an error with a descriptive message if any required value is missing
// or invalid.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("COMPLYCHECK_PORT", 8080),
			Env:  envString("COMPLYCHECK_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			Name:              envString("QUEUE_NAME", "analysis"),
			MaxJobsPerRun:     envInt("QUEUE_MAX_JOBS_PER_RUN", 25),
			MaxRunDuration:    envDurationSecs("QUEUE_MAX_RUN_DURATION_SECS", 50*time.Second),
			StaleAfter:        envDuration("QUEUE_STALE_AFTER", 10*time.Minute),
			PollInterval:      envDuration("QUEUE_POLL_INTERVAL", 0),
			RequestsPerMinute: envInt("QUEUE_ENQUEUE_RPM", 60),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			OpenAI: OpenAIConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  envString("OPENAI_MODEL", "gpt-4o"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Queue.MaxJobsPerRun <= 0 {
		return fmt.Errorf("QUEUE_MAX_JOBS_PER_RUN must be positive, got %d", c.Queue.MaxJobsPerRun)
	}
	if c.Queue.MaxRunDuration <= 0 {
		return fmt.Errorf("QUEUE_MAX_RUN_DURATION_SECS must be positive")
	}
	if c.Queue.StaleAfter < c.Queue.MaxRunDuration {
		return fmt.Errorf("QUEUE_STALE_AFTER must be at least the run duration budget, got %s", c.Queue.StaleAfter)
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, openai, anthropic; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
