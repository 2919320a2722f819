package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Models []seedEntry `yaml:"models"`
}

type seedEntry struct {
	Name         string  `yaml:"name"`
	DisplayName  string  `yaml:"display_name"`
	Provider     string  `yaml:"provider"`
	Enabled      bool    `yaml:"enabled"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	SystemPrompt string  `yaml:"system_prompt"`
	Endpoint     string  `yaml:"endpoint"`
}

// Seed loads model configurations from a YAML file at startup. Insert-only:
// a name that already exists in the registry is left untouched, so operator
// edits made through the admin API survive restarts. A missing file is not
// an error.
func (s *Service) Seed(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Debug("no model seed file", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}

	var seeded int
	for _, e := range f.Models {
		_, err := s.Create(ctx, CreateInput{
			Name:         e.Name,
			DisplayName:  e.DisplayName,
			Provider:     e.Provider,
			Enabled:      e.Enabled,
			Temperature:  e.Temperature,
			MaxTokens:    e.MaxTokens,
			SystemPrompt: e.SystemPrompt,
			Endpoint:     e.Endpoint,
		})
		if errors.Is(err, ErrNameTaken) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed model %q: %w", e.Name, err)
		}
		seeded++
	}
	if seeded > 0 {
		slog.Info("seeded model registry", "count", seeded, "path", path)
	}
	return nil
}
