package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domainauth "github.com/martinvidela/chatforge/internal/domain/auth"
)

type UserService interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*domainauth.User, int, error)
	GetUser(ctx context.Context, userID string) (*domainauth.User, error)
	UpdateUser(ctx context.Context, userID string, input domainauth.UpdateUserInput) (*domainauth.User, error)
}

// UserHandler serves the admin user-management endpoints.
type UserHandler struct {
	service UserService
}

func NewUserHandler(service UserService) *UserHandler {
	return &UserHandler{service: service}
}

type updateUserRequest struct {
	Role   string `json:"role"`
	Status string `json:"status"`
}

// List handles GET /api/v1/admin/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	p := parsePaginationParams(r)
	users, total, err := h.service.ListUsers(r.Context(), p.Limit, p.Offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []*domainauth.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "total": total})
}

// Get handles GET /api/v1/admin/users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domainauth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Update handles PUT /api/v1/admin/users/{id}: role promotion/demotion and
// status changes.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := h.service.UpdateUser(r.Context(), chi.URLParam(r, "id"), domainauth.UpdateUserInput{
		Role:   req.Role,
		Status: req.Status,
	})
	if err != nil {
		if errors.Is(err, domainauth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
