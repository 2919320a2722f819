package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/martinvidela/chatforge/internal/infra/filestore"
	"github.com/martinvidela/chatforge/internal/infra/provider"
)

// TopicMessageSent is the event published after a completed exchange. The
// usage recorder subscribes to it.
const TopicMessageSent = "message.sent"

// SentEvent is the payload published on TopicMessageSent.
type SentEvent struct {
	UserID    string
	ChatID    string
	ModelName string
	Provider  string
	Tokens    int
}

// Upload is one file received with a send, already read off the wire.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type SendInput struct {
	UserID    string
	ChatID    string
	Content   string
	ModelName string

	// Caller-side overrides; nil means use the model's configured value.
	Temperature *float64
	MaxTokens   *int

	Uploads []Upload
}

// SendOutcome reports how a send ended. Aborted means a stop request was
// observed: the user message is retained, AssistantMessage is nil, and no
// assistant row exists for the exchange.
type SendOutcome struct {
	UserMessage      *Message
	AssistantMessage *Message
	Aborted          bool
}

// inflightRegistry tracks at most one running send per chat so a stop
// request can reach it.
type inflightRegistry struct {
	mu      sync.Mutex
	entries map[string]*inflightEntry
}

type inflightEntry struct {
	cancel  context.CancelFunc
	aborted bool
}

func (r *inflightRegistry) start(chatID string, cancel context.CancelFunc) *inflightEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]*inflightEntry)
	}
	e := &inflightEntry{cancel: cancel}
	r.entries[chatID] = e
	return e
}

func (r *inflightRegistry) finish(chatID string, e *inflightEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[chatID] == e {
		delete(r.entries, chatID)
	}
}

// stop marks the chat's running send aborted, if there is one. Idempotent:
// stopping an idle chat, or stopping twice, reports false without error.
func (r *inflightRegistry) stop(chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[chatID]
	if !ok || e.aborted {
		return false
	}
	e.aborted = true
	e.cancel()
	return true
}

func (r *inflightRegistry) isAborted(chatID string, e *inflightEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.aborted
}

// Send runs the full exchange: persist the user message, call the resolved
// model's provider, persist the reply. Cancellation is cooperative; the
// aborted flag is checked before the provider call, after it, and before the
// assistant message is persisted. Whatever the path, the user message
// survives.
func (s *Service) Send(ctx context.Context, input SendInput) (*SendOutcome, error) {
	if input.Content == "" && len(input.Uploads) == 0 {
		return nil, ErrEmptyMessage
	}
	if input.ModelName == "" {
		return nil, ErrMissingModel
	}
	if _, err := s.GetChat(ctx, input.UserID, input.ChatID); err != nil {
		return nil, err
	}
	// Resolved before anything is written: an unknown or disabled model must
	// leave no message rows behind.
	cfg, err := s.models.FindEnabledByName(ctx, input.ModelName)
	if err != nil {
		return nil, err
	}

	descriptors, err := s.saveUploads(input.Uploads)
	if err != nil {
		return nil, err
	}

	// Persistence must not be lost to a request cancellation that races the
	// insert, so writes run on a detached context.
	persistCtx := context.WithoutCancel(ctx)
	userMsg, err := s.appendMessage(persistCtx, input.ChatID, provider.RoleUser, input.Content, "", 0, descriptors)
	if err != nil {
		return nil, err
	}
	s.touchChat(persistCtx, input.ChatID)

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	entry := s.inflight.start(input.ChatID, cancel)
	defer s.inflight.finish(input.ChatID, entry)

	aborted := func() bool { return s.inflight.isAborted(input.ChatID, entry) }
	if aborted() {
		return &SendOutcome{UserMessage: userMsg, Aborted: true}, nil
	}

	opts := provider.SendOptions{
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		SystemPrompt: cfg.SystemPrompt,
		Attachments:  descriptors,
	}
	if input.Temperature != nil {
		opts.Temperature = *input.Temperature
	}
	if input.MaxTokens != nil {
		opts.MaxTokens = *input.MaxTokens
	}

	history, err := s.providerHistory(sendCtx, input.ChatID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &SendOutcome{UserMessage: userMsg, Aborted: true}, nil
		}
		return nil, err
	}

	spec := provider.ModelSpec{Provider: cfg.Provider, Model: cfg.Name}
	if cfg.Endpoint != nil {
		spec.Endpoint = *cfg.Endpoint
	}
	adapter, err := s.newProvider(spec, s.creds, s.files)
	if err != nil {
		return nil, err
	}

	reply, err := adapter.SendMessage(sendCtx, history, opts)
	if aborted() {
		return &SendOutcome{UserMessage: userMsg, Aborted: true}, nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &SendOutcome{UserMessage: userMsg, Aborted: true}, nil
		}
		return nil, err
	}

	// Last checkpoint before the reply becomes durable.
	if aborted() {
		return &SendOutcome{UserMessage: userMsg, Aborted: true}, nil
	}

	assistantMsg, err := s.appendMessage(persistCtx, input.ChatID, provider.RoleAssistant, reply.Content, cfg.Name, reply.TokensUsed, nil)
	if err != nil {
		return nil, err
	}
	s.touchChat(persistCtx, input.ChatID)

	// A stop that lands between the insert above and here must still win:
	// the reply is rolled back so no assistant message survives an observed
	// cancellation.
	if aborted() {
		if err := s.deleteMessage(persistCtx, assistantMsg.ID); err != nil {
			slog.Warn("failed to roll back assistant message after stop", "messageId", assistantMsg.ID, "error", err)
		}
		return &SendOutcome{UserMessage: userMsg, Aborted: true}, nil
	}

	s.bus.Publish(TopicMessageSent, SentEvent{
		UserID:    input.UserID,
		ChatID:    input.ChatID,
		ModelName: cfg.Name,
		Provider:  cfg.Provider,
		Tokens:    reply.TokensUsed,
	})

	return &SendOutcome{UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

// Stop aborts the chat's running send, if any. The bool reports whether a
// send was actually running; calling Stop on an idle chat is not an error.
func (s *Service) Stop(ctx context.Context, userID, chatID string) (bool, error) {
	if _, err := s.GetChat(ctx, userID, chatID); err != nil {
		return false, err
	}
	return s.inflight.stop(chatID), nil
}

func (s *Service) saveUploads(uploads []Upload) ([]filestore.Descriptor, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	out := make([]filestore.Descriptor, 0, len(uploads))
	for _, u := range uploads {
		d, err := s.files.Save(u.Data, u.Filename, u.ContentType)
		if err != nil {
			return nil, fmt.Errorf("store upload %q: %w", u.Filename, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// providerHistory maps the persisted transcript (the just-saved user message
// included) to the provider wire shape.
func (s *Service) providerHistory(ctx context.Context, chatID string) ([]provider.ChatMessage, error) {
	msgs, err := s.listMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	out := make([]provider.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, provider.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}
