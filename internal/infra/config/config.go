// Package config provides application-wide configuration loaded from env vars.
// Provider credentials are opaque strings consumed by the adapter layer; every
// non-credential field has a safe default so the binary runs locally.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Server
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"8080"`

	// Storage
	DBPath    string `env:"DB_PATH" envDefault:"./chatforge.db"`
	UploadDir string `env:"UPLOAD_DIR" envDefault:"./uploads"`

	// Model registry seed file (optional; skipped when the file is absent).
	ModelSeedPath string `env:"MODEL_SEED_PATH" envDefault:"./models.yaml"`

	// Provider credentials — one secret per provider.
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GroqAPIKey      string `env:"GROQ_API_KEY"`

	// Provider endpoints. The hosted providers have fixed defaults; Ollama is
	// local; webhook endpoints come from each model config, not from here.
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	AnthropicBaseURL string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com/v1"`
	GroqBaseURL      string `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	OllamaBaseURL    string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
