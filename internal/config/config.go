package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kapu/pitch-coach-go/internal/constants"
)

// Provider names accepted by LLM_PRIMARY and LLM_FALLBACK.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderHTTP      = "http"
	ProviderCanned    = "canned"
)

// History drivers accepted by HISTORY_DRIVER.
const (
	HistoryPostgres = "postgres"
	HistorySQLite   = "sqlite"
	HistoryNone     = "none"
)

type Config struct {
	Server     ServerConfig
	LLM        LLMConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	Anthropic  AnthropicConfig
	Completion CompletionConfig
	Redis      RedisConfig
	History    HistoryConfig
	Session    SessionConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Addr           string
	GinMode        string
	AllowedOrigins []string
}

type LLMConfig struct {
	Primary       string
	Fallback      string
	MaxConcurrent int
}

type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type CompletionConfig struct {
	URL string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type HistoryConfig struct {
	Driver     string
	Postgres   PostgresConfig
	SQLitePath string
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type SessionConfig struct {
	TTL       time.Duration
	CacheSize int
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":8080"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: parseCommaSeparated(getEnv("CORS_ALLOWED_ORIGINS", "")),
		},
		LLM: LLMConfig{
			Primary:       strings.ToLower(getEnv("LLM_PRIMARY", ProviderOpenAI)),
			Fallback:      strings.ToLower(getEnv("LLM_FALLBACK", "")),
			MaxConcurrent: getEnvInt("LLM_MAX_CONCURRENT", int(constants.CompletionDefaults.MaxConcurrent)),
		},
		OpenAI: OpenAIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Model:       getEnv("OPENAI_MODEL", constants.CompletionDefaults.OpenAIModel),
			Temperature: getEnvFloat("OPENAI_TEMPERATURE", constants.CompletionDefaults.Temperature),
			MaxTokens:   getEnvInt("OPENAI_MAX_TOKENS", constants.CompletionDefaults.MaxTokens),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", constants.CompletionDefaults.GeminiModel),
		},
		Anthropic: AnthropicConfig{
			APIKey: getEnv("ANTHROPIC_API_KEY", ""),
			Model:  getEnv("ANTHROPIC_MODEL", constants.CompletionDefaults.AnthropicModel),
		},
		Completion: CompletionConfig{
			URL: getEnv("COMPLETION_URL", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		History: historyFromEnv(),
		Session: SessionConfig{
			TTL:       time.Duration(getEnvInt("SESSION_TTL_MINUTES", int(constants.SessionConfig.TTL/time.Minute))) * time.Minute,
			CacheSize: getEnvInt("SESSION_CACHE_SIZE", constants.SessionConfig.CacheSize),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", "logs/pitchcoach.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadHistory reads only the history backend settings, for tools that do not
// need completion credentials.
func LoadHistory() (HistoryConfig, error) {
	_ = godotenv.Load()

	cfg := historyFromEnv()
	switch cfg.Driver {
	case HistoryPostgres, HistorySQLite, HistoryNone:
		return cfg, nil
	default:
		return cfg, fmt.Errorf("unknown HISTORY_DRIVER %q", cfg.Driver)
	}
}

func historyFromEnv() HistoryConfig {
	return HistoryConfig{
		Driver: strings.ToLower(getEnv("HISTORY_DRIVER", HistorySQLite)),
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "pitchcoach"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "pitchcoach"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		SQLitePath: getEnv("SQLITE_PATH", "pitch_history.db"),
	}
}

func (c *Config) Validate() error {
	if err := c.validateProvider("LLM_PRIMARY", c.LLM.Primary); err != nil {
		return err
	}
	if c.LLM.Fallback != "" {
		if err := c.validateProvider("LLM_FALLBACK", c.LLM.Fallback); err != nil {
			return err
		}
		if c.LLM.Fallback == c.LLM.Primary {
			return fmt.Errorf("LLM_FALLBACK must differ from LLM_PRIMARY")
		}
	}
	if c.LLM.MaxConcurrent <= 0 {
		return fmt.Errorf("LLM_MAX_CONCURRENT must be positive")
	}

	switch c.History.Driver {
	case HistoryPostgres:
		if c.History.Postgres.Host == "" || c.History.Postgres.Database == "" {
			return fmt.Errorf("POSTGRES_HOST and POSTGRES_DB are required for the postgres history driver")
		}
	case HistorySQLite, HistoryNone:
	default:
		return fmt.Errorf("unknown HISTORY_DRIVER %q", c.History.Driver)
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive")
	}
	if c.Session.CacheSize <= 0 {
		return fmt.Errorf("SESSION_CACHE_SIZE must be positive")
	}
	return nil
}

func (c *Config) validateProvider(env, name string) error {
	switch name {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when %s=openai", env)
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when %s=gemini", env)
		}
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when %s=anthropic", env)
		}
	case ProviderHTTP:
		if c.Completion.URL == "" {
			return fmt.Errorf("COMPLETION_URL is required when %s=http", env)
		}
	case ProviderCanned:
	default:
		return fmt.Errorf("unknown %s %q", env, name)
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
