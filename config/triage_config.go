package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Paths
	MaildirPath   string
	OutputPath    string
	IndexPath     string
	MetaPath      string
	HeuristicPath string

	// Ranking / gate
	TopN          int
	GateThreshold float64
	RecencyDays   int // 0 defers to the heuristics file

	// LLM (any OpenAI-compatible endpoint, e.g. llama.cpp server)
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	EmbedModel     string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeout     time.Duration
	EmbedTimeout   time.Duration
	LLMMaxConc     int // in-flight completions; 0 is unlimited

	// Worker
	WorkerMax int

	// Optional backends
	DatabaseURL      string
	RedisURL         string
	CacheTTL         time.Duration
	MongoDBURL       string
	MongoDBName      string
	MetaStoreBackend string // file | postgres
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Paths
		MaildirPath:   expandHome(getEnv("SMARTMAIL_MAILDIR", "~/Projects/smart-mail/data/maildir")),
		OutputPath:    expandHome(getEnv("SMARTMAIL_OUT", "~/.local/share/smartmail/output.json")),
		IndexPath:     expandHome(getEnv("SMARTMAIL_FAISS", "data/domains.index")),
		MetaPath:      expandHome(getEnv("SMARTMAIL_META_DB", "data/domains.meta.json")),
		HeuristicPath: expandHome(getEnv("SMARTMAIL_DOMAINS", "config/domains.yml")),

		// Ranking / gate
		TopN:          getEnvInt("SMARTMAIL_TOP_N", 5),
		GateThreshold: getEnvFloat("GATE_THRESHOLD", 0.3),
		RecencyDays:   getEnvInt("RECENCY_DAYS", 0),

		// LLM
		LLMBaseURL:     getEnv("LLM_BASE_URL", "http://localhost:8081/v1"),
		LLMAPIKey:      getEnv("LLM_API_KEY", "sk-no-key-required"),
		LLMModel:       getEnv("LLM_MODEL", "mistral-7b-instruct-v0.2"),
		EmbedModel:     getEnv("EMBED_MODEL", "bge-small-en-v1.5"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 256),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.0),
		LLMTimeout:     time.Duration(getEnvInt("LLM_TIMEOUT_SEC", 600)) * time.Second,
		EmbedTimeout:   time.Duration(getEnvInt("EMBED_TIMEOUT_SEC", 60)) * time.Second,
		LLMMaxConc:     getEnvInt("LLM_MAX_CONCURRENT", 2),

		// Worker
		WorkerMax: getEnvInt("WORKER_MAX", 4),

		// Optional backends
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		CacheTTL:         time.Duration(getEnvInt("CACHE_TTL_HOUR", 24*7)) * time.Hour,
		MongoDBURL:       getEnv("MONGODB_URL", ""),
		MongoDBName:      getEnv("MONGODB_DATABASE", "smartmail"),
		MetaStoreBackend: getEnv("SMARTMAIL_META_BACKEND", "file"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot work with.
func (c *Config) Validate() error {
	if c.TopN <= 0 {
		return fmt.Errorf("SMARTMAIL_TOP_N must be positive, got %d", c.TopN)
	}
	if c.GateThreshold < 0 || c.GateThreshold > 1 {
		return fmt.Errorf("GATE_THRESHOLD must be within [0,1], got %v", c.GateThreshold)
	}
	if c.WorkerMax <= 0 {
		return fmt.Errorf("WORKER_MAX must be positive, got %d", c.WorkerMax)
	}
	if c.LLMMaxConc < 0 {
		return fmt.Errorf("LLM_MAX_CONCURRENT must not be negative, got %d", c.LLMMaxConc)
	}
	switch c.MetaStoreBackend {
	case "file", "postgres":
	default:
		return fmt.Errorf("SMARTMAIL_META_BACKEND must be file or postgres, got %q", c.MetaStoreBackend)
	}
	if c.MetaStoreBackend == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("SMARTMAIL_META_BACKEND=postgres requires DATABASE_URL")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
