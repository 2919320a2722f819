package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const anthropicAPIVersion = "2023-06-01"

// Claude talks to the Anthropic messages API. No multi-step workflow: images
// go inline as base64 blocks, PDFs are text-extracted synchronously and
// inlined as labeled blocks, other text files are inlined the same way.
type Claude struct {
	baseURL    string
	apiKey     string
	model      string
	files      FileReader
	httpClient *http.Client
}

func NewClaude(baseURL, apiKey, model string, files FileReader) *Claude {
	return &Claude{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		files:      files,
		httpClient: newHTTPClient(),
	}
}

func (p *Claude) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}
}

// ─── wire types ──────────────────────────────────────────────────────────────

type claudeMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string, or []claudeBlock for the attachment turn
}

type claudeBlock struct {
	Type   string             `json:"type"`
	Text   string             `json:"text,omitempty"`
	Source *claudeImageSource `json:"source,omitempty"`
}

type claudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ─── Provider implementation ────────────────────────────────────────────────

func (p *Claude) SendMessage(ctx context.Context, history []ChatMessage, opts SendOptions) (*Reply, error) {
	msgs := make([]claudeMessage, 0, len(history))
	for i, m := range history {
		if m.Role == RoleSystem {
			// Anthropic takes the system prompt as a top-level field
			continue
		}
		last := i == len(history)-1
		if last && m.Role == RoleUser && len(opts.Attachments) > 0 {
			msgs = append(msgs, claudeMessage{Role: m.Role, Content: p.attachmentBlocks(m.Content, opts)})
			continue
		}
		msgs = append(msgs, claudeMessage{Role: m.Role, Content: m.Content})
	}

	raw, err := postJSON(ctx, p.httpClient, KindClaude, p.baseURL+"/messages", p.headers(), claudeRequest{
		Model:       p.model,
		System:      opts.SystemPrompt,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	var resp claudeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProviderError{Provider: KindClaude, Message: "decode response", Err: err}
	}
	text := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, &ProviderError{Provider: KindClaude, Message: "no text block in response"}
	}
	return &Reply{Content: text, TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens}, nil
}

// attachmentBlocks renders the latest user turn as content blocks. Unreadable
// attachments degrade to bracketed text markers so the send still succeeds.
func (p *Claude) attachmentBlocks(text string, opts SendOptions) []claudeBlock {
	blocks := []claudeBlock{{Type: "text", Text: text}}
	for _, att := range opts.Attachments {
		data, err := p.files.Read(att.StoragePath)
		if err != nil {
			notice := fileErrorNotice(att.Filename)
			if isImage(att.ContentType) {
				notice = imageErrorNotice(att.Filename)
			}
			blocks = append(blocks, claudeBlock{Type: "text", Text: notice})
			continue
		}
		if isImage(att.ContentType) {
			blocks = append(blocks, claudeBlock{
				Type: "image",
				Source: &claudeImageSource{
					Type:      "base64",
					MediaType: att.ContentType,
					Data:      base64.StdEncoding.EncodeToString(data),
				},
			})
			continue
		}
		blocks = append(blocks, claudeBlock{Type: "text", Text: inlineTextFor(att, data)})
	}
	return blocks
}
