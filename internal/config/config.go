package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the vitalog server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
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

// AIConfig configures the inference gateway. DefaultBackend is used when a
// request does not name a backend explicitly; every backend with usable
// credentials is registered, so callers can address any of them by name.
type AIConfig struct {
	DefaultBackend   string
	InferenceTimeout time.Duration
	OpenAI           OpenAIConfig
	Gemini           GeminiConfig
	Ollama           OllamaConfig
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

var validBackends = map[string]bool{
	"openai": true,
	"gemini": true,
	"ollama": true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("VITALOG_PORT", 8080),
			Env:  envString("VITALOG_ENV", "development"),
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
		AI: AIConfig{
			DefaultBackend:   os.Getenv("AI_DEFAULT_BACKEND"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			OpenAI: OpenAIConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  envString("OPENAI_MODEL", "gpt-4o"),
			},
			Gemini: GeminiConfig{
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  envString("GEMINI_MODEL", "gemini-2.0-flash"),
			},
			Ollama: OllamaConfig{
				BaseURL: os.Getenv("OLLAMA_BASE_URL"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
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

	if c.AI.DefaultBackend == "" {
		return fmt.Errorf("AI_DEFAULT_BACKEND is required")
	}
	if !validBackends[c.AI.DefaultBackend] {
		return fmt.Errorf("AI_DEFAULT_BACKEND must be one of openai, gemini, ollama; got %q", c.AI.DefaultBackend)
	}

	if c.AI.DefaultBackend == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_DEFAULT_BACKEND is openai")
	}
	if c.AI.DefaultBackend == "gemini" && c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_DEFAULT_BACKEND is gemini")
	}
	if c.AI.DefaultBackend == "ollama" && c.AI.Ollama.BaseURL == "" {
		return fmt.Errorf("OLLAMA_BASE_URL is required when AI_DEFAULT_BACKEND is ollama")
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
