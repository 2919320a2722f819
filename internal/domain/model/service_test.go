package model_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/martinvidela/chatforge/internal/domain/model"
	"github.com/martinvidela/chatforge/internal/infra/provider"
	"github.com/martinvidela/chatforge/internal/infra/sqlite"
)

func mustOpenDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := sqlite.Bootstrap(db); err != nil {
		t.Fatalf("Bootstrap error = %v", err)
	}
	return db
}

func TestService_CRUD(t *testing.T) {
	t.Parallel()

	svc := model.NewService(mustOpenDB(t))
	ctx := context.Background()

	created, err := svc.Create(ctx, model.CreateInput{
		Name:        "gpt-4o",
		DisplayName: "GPT-4o",
		Provider:    "openai",
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected created.ID")
	}
	if created.Temperature != 0.7 || created.MaxTokens != 1024 {
		t.Fatalf("expected defaults applied, got temp=%v maxTokens=%d", created.Temperature, created.MaxTokens)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "gpt-4o" || !got.Enabled {
		t.Fatalf("unexpected config %+v", got)
	}

	updated, err := svc.Update(ctx, created.ID, model.UpdateInput{
		DisplayName: "GPT-4o (tuned)",
		Enabled:     false,
		Temperature: 0.2,
		MaxTokens:   2048,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.DisplayName != "GPT-4o (tuned)" || updated.Enabled || updated.Temperature != 0.2 {
		t.Fatalf("unexpected updated config %+v", updated)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, created.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestService_Create_DuplicateName(t *testing.T) {
	t.Parallel()

	svc := model.NewService(mustOpenDB(t))
	ctx := context.Background()

	if _, err := svc.Create(ctx, model.CreateInput{Name: "claude-sonnet", Provider: "claude", Enabled: true}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err := svc.Create(ctx, model.CreateInput{Name: "claude-sonnet", Provider: "claude", Enabled: true})
	if !errors.Is(err, model.ErrNameTaken) {
		t.Fatalf("duplicate Create() error = %v, want ErrNameTaken", err)
	}
}

func TestService_Create_UnknownProvider(t *testing.T) {
	t.Parallel()

	svc := model.NewService(mustOpenDB(t))
	_, err := svc.Create(context.Background(), model.CreateInput{Name: "x", Provider: "bedrock"})
	var unsupported *provider.UnsupportedProviderError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Create() error = %v, want UnsupportedProviderError", err)
	}
}

func TestService_Create_WebhookNeedsEndpoint(t *testing.T) {
	t.Parallel()

	svc := model.NewService(mustOpenDB(t))
	ctx := context.Background()

	if _, err := svc.Create(ctx, model.CreateInput{Name: "hook", Provider: "webhook"}); !errors.Is(err, model.ErrEndpointRequired) {
		t.Fatalf("Create() error = %v, want ErrEndpointRequired", err)
	}
	created, err := svc.Create(ctx, model.CreateInput{Name: "hook", Provider: "webhook", Endpoint: "https://example.com/chat"})
	if err != nil {
		t.Fatalf("Create() with endpoint error = %v", err)
	}
	if created.Endpoint == nil || *created.Endpoint != "https://example.com/chat" {
		t.Fatalf("endpoint not persisted: %+v", created)
	}
}

func TestService_FindEnabledByName(t *testing.T) {
	t.Parallel()

	svc := model.NewService(mustOpenDB(t))
	ctx := context.Background()

	if _, err := svc.Create(ctx, model.CreateInput{Name: "on", Provider: "ollama", Enabled: true}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(ctx, model.CreateInput{Name: "off", Provider: "ollama", Enabled: false}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.FindEnabledByName(ctx, "on"); err != nil {
		t.Fatalf("FindEnabledByName(on) error = %v", err)
	}
	// disabled and unknown must be indistinguishable
	if _, err := svc.FindEnabledByName(ctx, "off"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("FindEnabledByName(off) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.FindEnabledByName(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("FindEnabledByName(missing) error = %v, want ErrNotFound", err)
	}
}

func TestService_List_FiltersDisabled(t *testing.T) {
	t.Parallel()

	svc := model.NewService(mustOpenDB(t))
	ctx := context.Background()

	for _, in := range []model.CreateInput{
		{Name: "a", Provider: "openai", Enabled: true},
		{Name: "b", Provider: "groq", Enabled: false},
	} {
		if _, err := svc.Create(ctx, in); err != nil {
			t.Fatalf("Create(%s) error = %v", in.Name, err)
		}
	}

	enabled, err := svc.List(ctx, false)
	if err != nil {
		t.Fatalf("List(enabled) error = %v", err)
	}
	if len(enabled) != 1 || enabled[0].Name != "a" {
		t.Fatalf("expected only enabled model, got %+v", enabled)
	}

	all, err := svc.List(ctx, true)
	if err != nil {
		t.Fatalf("List(all) error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 models, got %d", len(all))
	}
}

func TestService_Seed(t *testing.T) {
	t.Parallel()

	svc := model.NewService(mustOpenDB(t))
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "models.yaml")
	seed := `models:
  - name: gpt-4o
    display_name: GPT-4o
    provider: openai
    enabled: true
    temperature: 0.5
    max_tokens: 4096
  - name: local
    provider: ollama
    enabled: true
`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	if err := svc.Seed(ctx, path); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	all, err := svc.List(ctx, true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 seeded models, got %d", len(all))
	}

	// second run is a no-op: existing names are skipped, admin edits survive
	if _, err := svc.Update(ctx, all[0].ID, model.UpdateInput{DisplayName: "edited", Enabled: true, Temperature: 0.1, MaxTokens: 99}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := svc.Seed(ctx, path); err != nil {
		t.Fatalf("second Seed() error = %v", err)
	}
	got, err := svc.Get(ctx, all[0].ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DisplayName != "edited" {
		t.Fatalf("seed overwrote admin edit: %+v", got)
	}
}

func TestService_Seed_MissingFile(t *testing.T) {
	t.Parallel()

	svc := model.NewService(mustOpenDB(t))
	if err := svc.Seed(context.Background(), filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("Seed() with missing file error = %v", err)
	}
}
