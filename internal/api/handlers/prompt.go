package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/martinvidela/chatforge/internal/domain/prompt"
)

type PromptService interface {
	Create(ctx context.Context, input prompt.Input) (*prompt.Template, error)
	Get(ctx context.Context, id string) (*prompt.Template, error)
	List(ctx context.Context) ([]*prompt.Template, error)
	Update(ctx context.Context, id string, input prompt.Input) (*prompt.Template, error)
	Delete(ctx context.Context, id string) error
}

type PromptHandler struct {
	service PromptService
}

func NewPromptHandler(service PromptService) *PromptHandler {
	return &PromptHandler{service: service}
}

type promptRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// List handles GET /api/v1/prompts. Readable by every authenticated user;
// mutation is admin-only.
func (h *PromptHandler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list prompt templates")
		return
	}
	if templates == nil {
		templates = []*prompt.Template{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// Create handles POST /api/v1/admin/prompts.
func (h *PromptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := h.service.Create(r.Context(), prompt.Input{Name: req.Name, Content: req.Content})
	if err != nil {
		h.writePromptError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/v1/admin/prompts/{id}.
func (h *PromptHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	updated, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), prompt.Input{Name: req.Name, Content: req.Content})
	if err != nil {
		h.writePromptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/admin/prompts/{id}.
func (h *PromptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writePromptError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PromptHandler) writePromptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, prompt.ErrNotFound):
		writeError(w, http.StatusNotFound, "prompt template not found")
	case errors.Is(err, prompt.ErrNameTaken):
		writeError(w, http.StatusConflict, "prompt template name already exists")
	default:
		writeError(w, http.StatusInternalServerError, "prompt template operation failed")
	}
}
