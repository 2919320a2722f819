package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// Groq speaks the OpenAI-compatible chat-completions wire format but never
// performs vision analysis: image attachments become a placeholder notice and
// document content is inlined into the latest user turn as flattened text.
type Groq struct {
	baseURL    string
	apiKey     string
	model      string
	files      FileReader
	httpClient *http.Client
}

func NewGroq(baseURL, apiKey, model string, files FileReader) *Groq {
	return &Groq{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		files:      files,
		httpClient: newHTTPClient(),
	}
}

func (p *Groq) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

func (p *Groq) SendMessage(ctx context.Context, history []ChatMessage, opts SendOptions) (*Reply, error) {
	msgs := make([]openaiChatMessage, 0, len(history)+1)
	if opts.SystemPrompt != "" {
		msgs = append(msgs, openaiChatMessage{Role: RoleSystem, Content: opts.SystemPrompt})
	}
	for i, m := range history {
		last := i == len(history)-1
		if last && m.Role == RoleUser && len(opts.Attachments) > 0 {
			msgs = append(msgs, openaiChatMessage{Role: m.Role, Content: p.flattenedContent(m.Content, opts)})
			continue
		}
		msgs = append(msgs, openaiChatMessage{Role: m.Role, Content: m.Content})
	}

	raw, err := postJSON(ctx, p.httpClient, KindGroq, p.baseURL+"/chat/completions", p.headers(), openaiChatRequest{
		Model:       p.model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	var resp openaiChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProviderError{Provider: KindGroq, Message: "decode chat response", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: KindGroq, Message: "empty choices in chat response"}
	}
	return &Reply{Content: resp.Choices[0].Message.Content, TokensUsed: resp.Usage.TotalTokens}, nil
}

// flattenedContent inlines every attachment into one text body: placeholder
// notices for images, labeled extracted text for documents.
func (p *Groq) flattenedContent(text string, opts SendOptions) string {
	var b strings.Builder
	b.WriteString(text)
	for _, att := range opts.Attachments {
		b.WriteString("\n\n")
		if isImage(att.ContentType) {
			b.WriteString(imageSkippedNotice(att.Filename))
			continue
		}
		data, err := p.files.Read(att.StoragePath)
		if err != nil {
			b.WriteString(fileErrorNotice(att.Filename))
			continue
		}
		b.WriteString(inlineTextFor(att, data))
	}
	return b.String()
}
