// Package provider normalizes the wire protocols of the supported AI
// backends (OpenAI, Anthropic Claude, Groq, Ollama, generic webhook) into one
// send-message contract. Each upstream exposes a different multimodal
// capability surface, so attachment handling diverges per adapter instead of
// being generic.
package provider

import (
	"context"

	"github.com/martinvidela/chatforge/internal/infra/filestore"
)

// Roles used in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single turn in a conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// SendOptions carries the per-request generation settings. Attachments apply
// to the latest user message in the history.
type SendOptions struct {
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	Attachments  []filestore.Descriptor
}

// Reply is the normalized adapter output.
type Reply struct {
	Content    string
	TokensUsed int
}

// Provider is the uniform adapter contract. Implementations fail with a
// *ProviderError when the remote call errors, times out, or returns a
// malformed payload.
type Provider interface {
	SendMessage(ctx context.Context, history []ChatMessage, opts SendOptions) (*Reply, error)
}

// FileReader reads stored attachment content back by path. Satisfied by
// *filestore.Local; stubbed in tests.
type FileReader interface {
	Read(path string) ([]byte, error)
}
