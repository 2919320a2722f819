package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/martinvidela/chatforge/internal/domain/chat"
	"github.com/martinvidela/chatforge/internal/domain/model"
	"github.com/martinvidela/chatforge/internal/infra/provider"
)

// maxUploadBytes bounds the multipart form kept in memory per send.
const maxUploadBytes = 32 << 20

// SendService is the slice of the chat domain the send path needs.
type SendService interface {
	Send(ctx context.Context, input chat.SendInput) (*chat.SendOutcome, error)
	Stop(ctx context.Context, userID, chatID string) (bool, error)
}

type MessageHandler struct {
	service SendService
}

func NewMessageHandler(service SendService) *MessageHandler {
	return &MessageHandler{service: service}
}

type sendResponse struct {
	UserMessage      *chat.Message `json:"userMessage"`
	AssistantMessage *chat.Message `json:"assistantMessage,omitempty"`
}

// Send handles POST /api/v1/chats/{id}/messages. The body is multipart form
// data: content, modelName, optional temperature and maxTokens overrides,
// and any number of files.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	input := chat.SendInput{
		UserID:    userID,
		ChatID:    chi.URLParam(r, "id"),
		Content:   r.FormValue("content"),
		ModelName: r.FormValue("modelName"),
	}
	if v := r.FormValue("temperature"); v != "" {
		temp, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "temperature must be a number")
			return
		}
		input.Temperature = &temp
	}
	if v := r.FormValue("maxTokens"); v != "" {
		maxTokens, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "maxTokens must be an integer")
			return
		}
		input.MaxTokens = &maxTokens
	}

	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			f, err := header.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable file part")
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable file part")
				return
			}
			input.Uploads = append(input.Uploads, chat.Upload{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}

	outcome, err := h.service.Send(r.Context(), input)
	if err != nil {
		h.writeSendError(w, err)
		return
	}
	if outcome.Aborted {
		writeJSON(w, StatusClientClosedRequest, map[string]any{
			"status":      "aborted",
			"userMessage": outcome.UserMessage,
		})
		return
	}
	writeJSON(w, http.StatusCreated, sendResponse{
		UserMessage:      outcome.UserMessage,
		AssistantMessage: outcome.AssistantMessage,
	})
}

// writeSendError maps the send error taxonomy onto HTTP statuses: validation
// 400, missing chat or model 404, provider failures 500 with the upstream
// detail attached.
func (h *MessageHandler) writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message content or files required")
	case errors.Is(err, chat.ErrMissingModel):
		writeError(w, http.StatusBadRequest, "modelName is required")
	case errors.Is(err, chat.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "chat not found")
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "model not found")
	default:
		var unsupported *provider.UnsupportedProviderError
		if errors.As(err, &unsupported) {
			writeErrorDetails(w, http.StatusInternalServerError, "model configuration invalid", unsupported.Error())
			return
		}
		var perr *provider.ProviderError
		if errors.As(err, &perr) {
			writeErrorDetails(w, http.StatusInternalServerError, "AI service error", perr.Error())
			return
		}
		writeErrorDetails(w, http.StatusInternalServerError, "failed to send message", err.Error())
	}
}

// Stop handles POST /api/v1/chats/{id}/stop. Idempotent: stopping an idle
// chat is a successful no-op.
func (h *MessageHandler) Stop(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stopped, err := h.service.Stop(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to stop generation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}
