// Package model is the registry of AI model configurations. Admins manage
// entries; the chat flow resolves an enabled entry by name and hands its
// provider settings to the adapter factory.
package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/martinvidela/chatforge/internal/infra/provider"
)

// ErrNotFound covers both an unknown model name and a disabled one: callers
// that resolve a model for sending must not be able to tell the two apart.
var ErrNotFound = errors.New("model not found")

// ErrEndpointRequired is returned when a webhook model is configured without
// a target URL.
var ErrEndpointRequired = errors.New("webhook models require an endpoint")

// ErrNameTaken is returned when creating a model whose name already exists.
var ErrNameTaken = errors.New("model name already exists")

type Config struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"displayName"`
	Provider     string    `json:"provider"`
	Enabled      bool      `json:"enabled"`
	Temperature  float64   `json:"temperature"`
	MaxTokens    int       `json:"maxTokens"`
	SystemPrompt string    `json:"systemPrompt"`
	Endpoint     *string   `json:"endpoint,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type CreateInput struct {
	Name         string
	DisplayName  string
	Provider     string
	Enabled      bool
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	Endpoint     string
}

type UpdateInput struct {
	DisplayName  string
	Enabled      bool
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	Endpoint     string
}

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func validateProvider(kind string) error {
	switch kind {
	case provider.KindOpenAI, provider.KindClaude, provider.KindGroq, provider.KindOllama, provider.KindWebhook:
		return nil
	default:
		return &provider.UnsupportedProviderError{Provider: kind}
	}
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*Config, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if err := validateProvider(input.Provider); err != nil {
		return nil, err
	}
	if input.Provider == provider.KindWebhook && input.Endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if input.Temperature == 0 {
		input.Temperature = 0.7
	}
	if input.MaxTokens == 0 {
		input.MaxTokens = 1024
	}

	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_config (id, name, display_name, provider, enabled, temperature, max_tokens, system_prompt, endpoint, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, input.Name, input.DisplayName, input.Provider, boolToInt(input.Enabled),
		input.Temperature, input.MaxTokens, input.SystemPrompt, nullString(input.Endpoint), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("create model: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Config, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM model_config WHERE id = ?`, id)
	return scanConfig(row)
}

// FindEnabledByName resolves the model used for a send. A disabled model is
// reported exactly like a missing one.
func (s *Service) FindEnabledByName(ctx context.Context, name string) (*Config, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM model_config WHERE name = ? AND enabled = 1`, name)
	return scanConfig(row)
}

// List returns every registered model when includeDisabled is set, otherwise
// only the enabled ones (the set a chat user may pick from).
func (s *Service) List(ctx context.Context, includeDisabled bool) ([]*Config, error) {
	query := selectColumns + ` FROM model_config`
	if !includeDisabled {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []*Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*Config, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Provider == provider.KindWebhook && input.Endpoint == "" {
		return nil, ErrEndpointRequired
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		UPDATE model_config
		SET display_name = ?, enabled = ?, temperature = ?, max_tokens = ?, system_prompt = ?, endpoint = ?, updated_at = ?
		WHERE id = ?`,
		input.DisplayName, boolToInt(input.Enabled), input.Temperature, input.MaxTokens,
		input.SystemPrompt, nullString(input.Endpoint), now, id)
	if err != nil {
		return nil, fmt.Errorf("update model: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM model_config WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `SELECT id, name, display_name, provider, enabled, temperature, max_tokens, system_prompt, endpoint, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*Config, error) {
	var (
		cfg       Config
		enabled   int
		endpoint  sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.DisplayName, &cfg.Provider, &enabled,
		&cfg.Temperature, &cfg.MaxTokens, &cfg.SystemPrompt, &endpoint, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan model: %w", err)
	}
	cfg.Enabled = enabled != 0
	if endpoint.Valid {
		cfg.Endpoint = &endpoint.String
	}
	cfg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &cfg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	// modernc sqlite reports constraint failures in the message; there is no
	// exported error code type to match on.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
