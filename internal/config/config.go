package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP server
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	GinMode    string `env:"GIN_MODE" envDefault:"release"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Feed registry: "file" | "postgres" | "memory"
	RegistryBackend string `env:"REGISTRY_BACKEND" envDefault:"file"`
	FeedsConfigPath string `env:"FEEDS_CONFIG_PATH" envDefault:"configs/feeds.yaml"`
	DatabaseURL     string `env:"DATABASE_URL"`

	// Result cache: "file" | "redis" | "memory"
	CacheBackend string        `env:"CACHE_BACKEND" envDefault:"file"`
	CacheDir     string        `env:"CACHE_DIR" envDefault:"./cache/rss_cache"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	RedisAddr    string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB      int           `env:"REDIS_DB" envDefault:"0"`

	// Fetching
	FeedTimeout    time.Duration `env:"FEED_TIMEOUT" envDefault:"15s"`
	PageTimeout    time.Duration `env:"PAGE_TIMEOUT" envDefault:"20s"`
	ProbeTimeout   time.Duration `env:"PROBE_TIMEOUT" envDefault:"10s"`
	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" envDefault:"1s"`
	HostRateLimit  float64       `env:"HOST_RATE_LIMIT_RPS" envDefault:"2"`
	HostRateBurst  int           `env:"HOST_RATE_LIMIT_BURST" envDefault:"4"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES" envDefault:"5242880"`
	UserAgent      string        `env:"USER_AGENT"`
	FeedWorkers    int           `env:"FEED_WORKERS" envDefault:"6"`
	PageWorkers    int           `env:"PAGE_WORKERS" envDefault:"5"`
	EntriesPerFeed int           `env:"ENTRIES_PER_FEED" envDefault:"20"`
	ProbesPerTier  int           `env:"IMAGE_PROBES_PER_TIER" envDefault:"3"`

	// External news search
	NewsAPIKey  string `env:"NEWS_API_KEY"`
	NewsAPIBase string `env:"NEWS_API_BASE" envDefault:"https://newsapi.org"`

	// Sentiment providers
	GroqAPIKey       string `env:"GROQ_API_KEY"`
	GroqBaseURL      string `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	GroqModel        string `env:"GROQ_MODEL" envDefault:"llama-3.1-8b-instant"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiModel      string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	MaxLLMRequests   int    `env:"MAX_LLM_REQUESTS" envDefault:"200"` // per day, 0 = unlimited
	SentimentWorkers int    `env:"SENTIMENT_WORKERS" envDefault:"4"`

	Debug bool `env:"DEBUG" envDefault:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.RegistryBackend {
	case "file", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for REGISTRY_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be 'file', 'postgres' or 'memory'")
	}

	switch c.CacheBackend {
	case "file", "memory", "redis":
	default:
		return fmt.Errorf("CACHE_BACKEND must be 'file', 'redis' or 'memory'")
	}

	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be 'debug', 'release' or 'test'")
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.FeedWorkers < 1 || c.PageWorkers < 1 {
		return fmt.Errorf("FEED_WORKERS and PAGE_WORKERS must be at least 1")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	if c.EntriesPerFeed < 1 {
		return fmt.Errorf("ENTRIES_PER_FEED must be at least 1")
	}
	return nil
}
