// Package api wires the HTTP surface: the chi router, middleware, and route
// registration, split into public routes (/health, /auth/*) and JWT-protected
// routes (/api/v1/*).
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/martinvidela/chatforge/internal/api/handlers"
	apmiddleware "github.com/martinvidela/chatforge/internal/api/middleware"
	domainauth "github.com/martinvidela/chatforge/internal/domain/auth"
	"github.com/martinvidela/chatforge/internal/domain/chat"
	"github.com/martinvidela/chatforge/internal/domain/model"
	"github.com/martinvidela/chatforge/internal/domain/prompt"
	"github.com/martinvidela/chatforge/internal/domain/usage"
	"github.com/martinvidela/chatforge/internal/infra/config"
	"github.com/martinvidela/chatforge/internal/infra/eventbus"
	"github.com/martinvidela/chatforge/internal/infra/filestore"
	"github.com/martinvidela/chatforge/internal/infra/provider"
)

// NewRouter builds the chi router with every route registered and starts the
// background usage recorder.
func NewRouter(db *sql.DB, cfg config.Config) (*chi.Mux, error) {
	files, err := filestore.NewLocal(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("init upload store: %w", err)
	}

	creds := provider.Credentials{
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		GroqAPIKey:       cfg.GroqAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		GroqBaseURL:      cfg.GroqBaseURL,
		OllamaBaseURL:    cfg.OllamaBaseURL,
	}

	bus := eventbus.New()
	modelService := model.NewService(db)
	chatService := chat.NewService(db, modelService, files, creds, bus)
	authService := domainauth.NewService(db)
	promptService := prompt.NewService(db)
	usageRecorder := usage.NewRecorder(db, bus)
	go usageRecorder.Start(context.Background())

	authHandler := handlers.NewAuthHandler(authService)
	chatHandler := handlers.NewChatHandler(chatService)
	messageHandler := handlers.NewMessageHandler(chatService)
	modelHandler := handlers.NewModelHandler(modelService)
	promptHandler := handlers.NewPromptHandler(promptService)
	userHandler := handlers.NewUserHandler(authService)
	usageHandler := handlers.NewUsageHandler(usageRecorder)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// health check, unauthenticated, for load balancers and probes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apmiddleware.AuthMiddleware)

		r.Route("/chats", func(r chi.Router) {
			r.Post("/", chatHandler.CreateChat)
			r.Get("/", chatHandler.ListChats)
			r.Get("/{id}", chatHandler.GetChat)
			r.Put("/{id}", chatHandler.RenameChat)
			r.Delete("/{id}", chatHandler.DeleteChat)
			r.Get("/{id}/messages", chatHandler.ListMessages)
			r.Post("/{id}/messages", messageHandler.Send)
			r.Post("/{id}/stop", messageHandler.Stop)
		})

		r.Get("/models", modelHandler.ListEnabled)
		r.Get("/prompts", promptHandler.List)

		r.Route("/admin", func(r chi.Router) {
			r.Use(apmiddleware.RequireAdmin)

			r.Route("/models", func(r chi.Router) {
				r.Post("/", modelHandler.Create)
				r.Get("/", modelHandler.ListAll)
				r.Get("/{id}", modelHandler.Get)
				r.Put("/{id}", modelHandler.Update)
				r.Delete("/{id}", modelHandler.Delete)
			})

			r.Route("/prompts", func(r chi.Router) {
				r.Post("/", promptHandler.Create)
				r.Put("/{id}", promptHandler.Update)
				r.Delete("/{id}", promptHandler.Delete)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", userHandler.List)
				r.Get("/{id}", userHandler.Get)
				r.Put("/{id}", userHandler.Update)
			})

			r.Route("/usage", func(r chi.Router) {
				r.Get("/", usageHandler.List)
				r.Get("/totals", usageHandler.Totals)
			})
		})
	})

	return r, nil
}
