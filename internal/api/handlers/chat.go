package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/martinvidela/chatforge/internal/domain/chat"
)

// ChatService is the slice of the chat domain the CRUD handlers need. The
// send path has its own interface in message.go.
type ChatService interface {
	CreateChat(ctx context.Context, userID, title string) (*chat.Chat, error)
	GetChat(ctx context.Context, userID, chatID string) (*chat.Chat, error)
	ListChats(ctx context.Context, userID string, limit, offset int) ([]*chat.Chat, int, error)
	RenameChat(ctx context.Context, userID, chatID, title string) (*chat.Chat, error)
	DeleteChat(ctx context.Context, userID, chatID string) error
	ListMessages(ctx context.Context, userID, chatID string) ([]*chat.Message, error)
}

type ChatHandler struct {
	service ChatService
}

func NewChatHandler(service ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

type chatRequest struct {
	Title string `json:"title"`
}

type chatListResponse struct {
	Chats []*chat.Chat `json:"chats"`
	Total int          `json:"total"`
}

// CreateChat handles POST /api/v1/chats.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req chatRequest
	if r.Body != nil {
		// an empty body means a default-titled chat
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	created, err := h.service.CreateChat(r.Context(), userID, req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListChats handles GET /api/v1/chats.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	p := parsePaginationParams(r)

	chats, total, err := h.service.ListChats(r.Context(), userID, p.Limit, p.Offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	if chats == nil {
		chats = []*chat.Chat{}
	}
	writeJSON(w, http.StatusOK, chatListResponse{Chats: chats, Total: total})
}

// GetChat handles GET /api/v1/chats/{id}.
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	got, err := h.service.GetChat(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get chat")
		return
	}
	writeJSON(w, http.StatusOK, got)
}

// RenameChat handles PUT /api/v1/chats/{id}.
func (h *ChatHandler) RenameChat(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	renamed, err := h.service.RenameChat(r.Context(), userID, chi.URLParam(r, "id"), req.Title)
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to rename chat")
		return
	}
	writeJSON(w, http.StatusOK, renamed)
}

// DeleteChat handles DELETE /api/v1/chats/{id}.
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.service.DeleteChat(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete chat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMessages handles GET /api/v1/chats/{id}/messages.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	msgs, err := h.service.ListMessages(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []*chat.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
