// Package config loads process configuration from the environment and an
// optional config file.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageJSON     = "json"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string
	DataDir     string

	// Storage
	StorageDriver string
	DatabaseURL   string
	MongoDBURL    string
	MongoDBName   string
	RedisURL      string

	// Model server
	LLMProvider        string
	LLMServerURL       string
	LLMModel           string
	LLMAPIKey          string
	LLMTimeoutSec      int
	LLMMaxTokens       int
	LLMDisableThinking bool
	LLMBreakerFailures int

	// Pipeline
	NeedsReplyTag     string
	TagsFile          string
	ClassifyBodyLimit int
	ReplyBodyLimit    int
	ReplyLanguage     string
	ReplyTone         string
	PreflightCheck    bool

	// Batch runner
	BatchQueueSize  int
	BatchTimeoutSec int

	// API
	JWTSecret      string
	AllowedOrigins []string
}

// Load reads configuration. Environment variables win over CONFIG_FILE.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}
	env := envReader{v: v}

	cfg := &Config{
		Port:        env.str("PORT", "8080"),
		Environment: env.str("ENV", "development"),
		LogLevel:    env.str("LOG_LEVEL", "info"),
		DataDir:     env.str("DATA_DIR", defaultDataDir()),

		StorageDriver: strings.ToLower(env.str("STORAGE_DRIVER", StorageJSON)),
		DatabaseURL:   env.str("DATABASE_URL", ""),
		MongoDBURL:    env.str("MONGODB_URL", ""),
		MongoDBName:   env.str("MONGODB_DATABASE", "smart_mailbox"),
		RedisURL:      env.str("REDIS_URL", ""),

		LLMProvider:        strings.ToLower(env.str("LLM_PROVIDER", "ollama")),
		LLMServerURL:       env.str("LLM_SERVER_URL", "http://localhost:11434"),
		LLMModel:           env.str("LLM_MODEL", "llama3.2"),
		LLMAPIKey:          env.str("LLM_API_KEY", ""),
		LLMTimeoutSec:      env.int("LLM_TIMEOUT_SEC", 60),
		LLMMaxTokens:       env.int("LLM_MAX_TOKENS", 1024),
		LLMDisableThinking: env.bool("LLM_DISABLE_THINKING", true),
		LLMBreakerFailures: env.int("LLM_BREAKER_FAILURES", 3),

		NeedsReplyTag:     env.str("NEEDS_REPLY_TAG", "NeedsReply"),
		TagsFile:          env.str("TAGS_FILE", ""),
		ClassifyBodyLimit: env.int("CLASSIFY_BODY_LIMIT", 2000),
		ReplyBodyLimit:    env.int("REPLY_BODY_LIMIT", 1500),
		ReplyLanguage:     env.str("REPLY_LANGUAGE", "English"),
		ReplyTone:         env.str("REPLY_TONE", "professional"),
		PreflightCheck:    env.bool("PREFLIGHT_CHECK", true),

		BatchQueueSize:  env.int("BATCH_QUEUE_SIZE", 32),
		BatchTimeoutSec: env.int("BATCH_TIMEOUT_SEC", 0),

		JWTSecret:      env.str("API_JWT_SECRET", ""),
		AllowedOrigins: env.slice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations that cannot start.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageJSON, StorageSQLite:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORAGE_DRIVER=postgres requires DATABASE_URL")
		}
	case StorageMongo:
		if c.MongoDBURL == "" {
			return fmt.Errorf("STORAGE_DRIVER=mongo requires MONGODB_URL")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is empty")
	}
	return nil
}

// SQLitePath is where the sqlite store keeps its database.
func (c *Config) SQLitePath() string {
	if c.DatabaseURL != "" && c.StorageDriver == StorageSQLite {
		return c.DatabaseURL
	}
	return filepath.Join(c.DataDir, "mailbox.db")
}

func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSec) * time.Second
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
