package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/martinvidela/chatforge/internal/domain/model"
	"github.com/martinvidela/chatforge/internal/infra/provider"
)

type ModelService interface {
	Create(ctx context.Context, input model.CreateInput) (*model.Config, error)
	Get(ctx context.Context, id string) (*model.Config, error)
	List(ctx context.Context, includeDisabled bool) ([]*model.Config, error)
	Update(ctx context.Context, id string, input model.UpdateInput) (*model.Config, error)
	Delete(ctx context.Context, id string) error
}

type ModelHandler struct {
	service ModelService
}

func NewModelHandler(service ModelService) *ModelHandler {
	return &ModelHandler{service: service}
}

type modelRequest struct {
	Name         string  `json:"name"`
	DisplayName  string  `json:"displayName"`
	Provider     string  `json:"provider"`
	Enabled      bool    `json:"enabled"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
	SystemPrompt string  `json:"systemPrompt"`
	Endpoint     string  `json:"endpoint"`
}

// ListEnabled handles GET /api/v1/models: the set a chat user may pick from.
func (h *ModelHandler) ListEnabled(w http.ResponseWriter, r *http.Request) {
	models, err := h.service.List(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list models")
		return
	}
	if models == nil {
		models = []*model.Config{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// ListAll handles GET /api/v1/admin/models.
func (h *ModelHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	models, err := h.service.List(r.Context(), true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list models")
		return
	}
	if models == nil {
		models = []*model.Config{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// Create handles POST /api/v1/admin/models.
func (h *ModelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := h.service.Create(r.Context(), model.CreateInput{
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		Provider:     req.Provider,
		Enabled:      req.Enabled,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
		Endpoint:     req.Endpoint,
	})
	if err != nil {
		h.writeModelError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Get handles GET /api/v1/admin/models/{id}.
func (h *ModelHandler) Get(w http.ResponseWriter, r *http.Request) {
	got, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeModelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

// Update handles PUT /api/v1/admin/models/{id}.
func (h *ModelHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), model.UpdateInput{
		DisplayName:  req.DisplayName,
		Enabled:      req.Enabled,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
		Endpoint:     req.Endpoint,
	})
	if err != nil {
		h.writeModelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/admin/models/{id}.
func (h *ModelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeModelError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ModelHandler) writeModelError(w http.ResponseWriter, err error) {
	var unsupported *provider.UnsupportedProviderError
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "model not found")
	case errors.Is(err, model.ErrNameTaken):
		writeError(w, http.StatusConflict, "model name already exists")
	case errors.Is(err, model.ErrEndpointRequired):
		writeError(w, http.StatusBadRequest, "webhook models require an endpoint")
	case errors.As(err, &unsupported):
		writeError(w, http.StatusBadRequest, unsupported.Error())
	default:
		writeError(w, http.StatusInternalServerError, "model operation failed")
	}
}
