package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// Webhook forwards the whole exchange to an operator-configured URL and
// treats whatever comes back as the assistant reply. The receiving side gets
// the full history, the system prompt, a fresh session identifier, and a
// normalized attachment list (images base64-encoded, everything else UTF-8
// text).
type Webhook struct {
	endpoint   string
	model      string
	files      FileReader
	httpClient *http.Client
}

func NewWebhook(endpoint, model string, files FileReader) *Webhook {
	return &Webhook{
		endpoint:   endpoint,
		model:      model,
		files:      files,
		httpClient: newHTTPClient(),
	}
}

type webhookAttachment struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Encoding string `json:"encoding"` // "base64" | "text"
	Content  string `json:"content"`
}

type webhookRequest struct {
	SessionID    string              `json:"session_id"`
	Model        string              `json:"model"`
	Message      string              `json:"message"`
	SystemPrompt string              `json:"system_prompt"`
	History      []ChatMessage       `json:"history"`
	Attachments  []webhookAttachment `json:"attachments"`
}

// webhookResponse tolerates both field-name conventions seen in the wild for
// the reply text and the token count.
type webhookResponse struct {
	Response   string `json:"response"`
	Reply      string `json:"reply"`
	TokensUsed int    `json:"tokens_used"`
	Tokens     int    `json:"tokens"`
}

func (p *Webhook) SendMessage(ctx context.Context, history []ChatMessage, opts SendOptions) (*Reply, error) {
	if p.endpoint == "" {
		return nil, &ProviderError{Provider: KindWebhook, Message: "no endpoint configured"}
	}

	req := webhookRequest{
		SessionID:    uuid.New().String(),
		Model:        p.model,
		Message:      latestUserContent(history),
		SystemPrompt: opts.SystemPrompt,
		History:      history,
		Attachments:  p.normalizeAttachments(opts),
	}

	raw, err := postJSON(ctx, p.httpClient, KindWebhook, p.endpoint, nil, req)
	if err != nil {
		return nil, err
	}

	var resp webhookResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProviderError{Provider: KindWebhook, Message: "decode response", Err: err}
	}
	content := resp.Response
	if content == "" {
		content = resp.Reply
	}
	if content == "" {
		return nil, &ProviderError{Provider: KindWebhook, Message: "response carries no reply text"}
	}
	tokens := resp.TokensUsed
	if tokens == 0 {
		tokens = resp.Tokens
	}
	return &Reply{Content: content, TokensUsed: tokens}, nil
}

func (p *Webhook) normalizeAttachments(opts SendOptions) []webhookAttachment {
	out := make([]webhookAttachment, 0, len(opts.Attachments))
	for _, att := range opts.Attachments {
		data, err := p.files.Read(att.StoragePath)
		if err != nil {
			out = append(out, webhookAttachment{
				Name:     att.Filename,
				Type:     att.ContentType,
				Encoding: "text",
				Content:  fileErrorNotice(att.Filename),
			})
			continue
		}
		if isImage(att.ContentType) {
			out = append(out, webhookAttachment{
				Name:     att.Filename,
				Type:     att.ContentType,
				Encoding: "base64",
				Content:  base64.StdEncoding.EncodeToString(data),
			})
			continue
		}
		out = append(out, webhookAttachment{
			Name:     att.Filename,
			Type:     att.ContentType,
			Encoding: "text",
			Content:  string(data),
		})
	}
	return out
}
