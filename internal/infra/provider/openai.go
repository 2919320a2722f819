package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/martinvidela/chatforge/internal/infra/filestore"
)

// Assistants-run polling bounds. The run either reaches a terminal status
// within runTimeout or the send fails with ErrRunTimeout.
const (
	defaultRunPollInterval = 1 * time.Second
	defaultRunTimeout      = 60 * time.Second
)

// OpenAI talks to the OpenAI API. Two paths:
//   - direct chat completions, with images embedded as base64 data URIs;
//   - the three-phase assistants protocol when any attachment is a document
//     type (upload files → ephemeral assistant with file_search → thread/run,
//     polled to completion, then best-effort cleanup).
//
// The assistants API does not expose token usage, so that path reports 0.
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	files      FileReader
	httpClient *http.Client

	pollInterval time.Duration
	runTimeout   time.Duration
}

func NewOpenAI(baseURL, apiKey, model string, files FileReader) *OpenAI {
	return &OpenAI{
		baseURL:      baseURL,
		apiKey:       apiKey,
		model:        model,
		files:        files,
		httpClient:   newHTTPClient(),
		pollInterval: defaultRunPollInterval,
		runTimeout:   defaultRunTimeout,
	}
}

func (p *OpenAI) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

func (p *OpenAI) assistantHeaders() map[string]string {
	h := p.headers()
	h["OpenAI-Beta"] = "assistants=v2"
	return h
}

// ─── wire types ──────────────────────────────────────────────────────────────

type openaiChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string, or []openaiContentPart for multimodal turns
}

type openaiContentPart struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *openaiImagePart `json:"image_url,omitempty"`
}

type openaiImagePart struct {
	URL string `json:"url"`
}

type openaiChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openaiChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// ─── Provider implementation ────────────────────────────────────────────────

// SendMessage routes on attachment type: any document attachment switches the
// whole exchange onto the assistants protocol, everything else stays on the
// direct chat-completions call. Attachments that are neither documents nor
// images are never uploaded; they turn into an inline notice on whichever
// path runs.
func (p *OpenAI) SendMessage(ctx context.Context, history []ChatMessage, opts SendOptions) (*Reply, error) {
	var docs []filestore.Descriptor
	for _, att := range opts.Attachments {
		if isDocument(att.ContentType) {
			docs = append(docs, att)
		}
	}
	if len(docs) > 0 {
		return p.sendViaAssistants(ctx, history, opts, docs)
	}
	return p.sendDirect(ctx, history, opts)
}

// sendDirect is the standard chat-completions call. Image attachments ride
// along as base64 data URIs on the latest user message.
func (p *OpenAI) sendDirect(ctx context.Context, history []ChatMessage, opts SendOptions) (*Reply, error) {
	msgs := make([]openaiChatMessage, 0, len(history)+1)
	if opts.SystemPrompt != "" {
		msgs = append(msgs, openaiChatMessage{Role: RoleSystem, Content: opts.SystemPrompt})
	}
	for i, m := range history {
		last := i == len(history)-1
		if last && m.Role == RoleUser && len(opts.Attachments) > 0 {
			msgs = append(msgs, openaiChatMessage{Role: m.Role, Content: p.multimodalParts(m.Content, opts.Attachments)})
			continue
		}
		msgs = append(msgs, openaiChatMessage{Role: m.Role, Content: m.Content})
	}

	raw, err := postJSON(ctx, p.httpClient, KindOpenAI, p.baseURL+"/chat/completions", p.headers(), openaiChatRequest{
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
		return nil, &ProviderError{Provider: KindOpenAI, Message: "decode chat response", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: KindOpenAI, Message: "empty choices in chat response"}
	}
	return &Reply{Content: resp.Choices[0].Message.Content, TokensUsed: resp.Usage.TotalTokens}, nil
}

// multimodalParts builds the content array for a user turn with attachments.
// Images ride along as base64 data URIs; an unreadable image becomes a text
// marker instead of failing the send; anything that is not an image gets an
// unsupported-type notice.
func (p *OpenAI) multimodalParts(text string, atts []filestore.Descriptor) []openaiContentPart {
	parts := []openaiContentPart{{Type: "text", Text: text}}
	for _, att := range atts {
		if !isImage(att.ContentType) {
			parts = append(parts, openaiContentPart{Type: "text", Text: unsupportedFileNotice(att.Filename)})
			continue
		}
		data, err := p.files.Read(att.StoragePath)
		if err != nil {
			parts = append(parts, openaiContentPart{Type: "text", Text: imageErrorNotice(att.Filename)})
			continue
		}
		uri := fmt.Sprintf("data:%s;base64,%s", att.ContentType, base64.StdEncoding.EncodeToString(data))
		parts = append(parts, openaiContentPart{Type: "image_url", ImageURL: &openaiImagePart{URL: uri}})
	}
	return parts
}

// ─── assistants protocol ────────────────────────────────────────────────────

type assistantCreated struct {
	ID string `json:"id"`
}

type runStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type threadMessages struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// sendViaAssistants runs the three-phase document workflow:
//  1. upload each document as a remote file,
//  2. create an ephemeral assistant scoped with file_search and the system
//     prompt, plus a thread holding the latest user message,
//  3. run the assistant and poll until a terminal status or the wall clock
//     runs out, then fetch the reply.
//
// The ephemeral assistant and uploaded files are deleted afterwards no matter
// how the run ended; those cleanup failures are logged, never raised.
func (p *OpenAI) sendViaAssistants(ctx context.Context, history []ChatMessage, opts SendOptions, docs []filestore.Descriptor) (*Reply, error) {
	latest := latestUserContent(history)
	for _, att := range opts.Attachments {
		if !isImage(att.ContentType) && !isDocument(att.ContentType) {
			latest += "\n" + unsupportedFileNotice(att.Filename)
		}
	}

	fileIDs := make([]string, 0, len(docs))
	defer func() { p.deleteFiles(ctx, fileIDs) }()
	for _, att := range docs {
		data, err := p.files.Read(att.StoragePath)
		if err != nil {
			// unreadable upload — note it in the message instead of aborting
			latest += "\n" + fileErrorNotice(att.Filename)
			continue
		}
		id, err := p.uploadFile(ctx, att.StoredName, data)
		if err != nil {
			return nil, err
		}
		fileIDs = append(fileIDs, id)
	}

	assistantID, err := p.createAssistant(ctx, opts.SystemPrompt)
	if err != nil {
		return nil, err
	}
	defer p.deleteAssistant(ctx, assistantID)

	threadID, err := p.createThread(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.postThreadMessage(ctx, threadID, latest, fileIDs); err != nil {
		return nil, err
	}

	runID, err := p.createRun(ctx, threadID, assistantID)
	if err != nil {
		return nil, err
	}
	if err := p.waitForRun(ctx, threadID, runID); err != nil {
		return nil, err
	}

	content, err := p.fetchAssistantReply(ctx, threadID)
	if err != nil {
		return nil, err
	}
	// the assistants API does not report usage
	return &Reply{Content: content, TokensUsed: 0}, nil
}

func latestUserContent(history []ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// uploadFile POSTs one attachment to /files with purpose=assistants.
func (p *OpenAI) uploadFile(ctx context.Context, name string, data []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "assistants"); err != nil {
		return "", &ProviderError{Provider: KindOpenAI, Message: "build upload form", Err: err}
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", &ProviderError{Provider: KindOpenAI, Message: "build upload form", Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return "", &ProviderError{Provider: KindOpenAI, Message: "build upload form", Err: err}
	}
	if err := w.Close(); err != nil {
		return "", &ProviderError{Provider: KindOpenAI, Message: "build upload form", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/files", &buf)
	if err != nil {
		return "", &ProviderError{Provider: KindOpenAI, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	raw, err := doRequest(p.httpClient, KindOpenAI, req)
	if err != nil {
		return "", err
	}
	var created assistantCreated
	if err := json.Unmarshal(raw, &created); err != nil || created.ID == "" {
		return "", &ProviderError{Provider: KindOpenAI, Message: "decode file upload response", Err: err}
	}
	return created.ID, nil
}

func (p *OpenAI) createAssistant(ctx context.Context, systemPrompt string) (string, error) {
	raw, err := postJSON(ctx, p.httpClient, KindOpenAI, p.baseURL+"/assistants", p.assistantHeaders(), map[string]any{
		"model":        p.model,
		"instructions": systemPrompt,
		"tools":        []map[string]string{{"type": "file_search"}},
	})
	if err != nil {
		return "", err
	}
	var created assistantCreated
	if err := json.Unmarshal(raw, &created); err != nil || created.ID == "" {
		return "", &ProviderError{Provider: KindOpenAI, Message: "decode assistant response", Err: err}
	}
	return created.ID, nil
}

func (p *OpenAI) createThread(ctx context.Context) (string, error) {
	raw, err := postJSON(ctx, p.httpClient, KindOpenAI, p.baseURL+"/threads", p.assistantHeaders(), map[string]any{})
	if err != nil {
		return "", err
	}
	var created assistantCreated
	if err := json.Unmarshal(raw, &created); err != nil || created.ID == "" {
		return "", &ProviderError{Provider: KindOpenAI, Message: "decode thread response", Err: err}
	}
	return created.ID, nil
}

func (p *OpenAI) postThreadMessage(ctx context.Context, threadID, content string, fileIDs []string) error {
	attachments := make([]map[string]any, 0, len(fileIDs))
	for _, id := range fileIDs {
		attachments = append(attachments, map[string]any{
			"file_id": id,
			"tools":   []map[string]string{{"type": "file_search"}},
		})
	}
	_, err := postJSON(ctx, p.httpClient, KindOpenAI, p.baseURL+"/threads/"+threadID+"/messages", p.assistantHeaders(), map[string]any{
		"role":        RoleUser,
		"content":     content,
		"attachments": attachments,
	})
	return err
}

func (p *OpenAI) createRun(ctx context.Context, threadID, assistantID string) (string, error) {
	raw, err := postJSON(ctx, p.httpClient, KindOpenAI, p.baseURL+"/threads/"+threadID+"/runs", p.assistantHeaders(), map[string]any{
		"assistant_id": assistantID,
	})
	if err != nil {
		return "", err
	}
	var created runStatus
	if err := json.Unmarshal(raw, &created); err != nil || created.ID == "" {
		return "", &ProviderError{Provider: KindOpenAI, Message: "decode run response", Err: err}
	}
	return created.ID, nil
}

// waitForRun polls the run status once per pollInterval until it reaches
// completed, or fails distinctly: failed/cancelled/expired become a
// ProviderError with the upstream status, and exceeding runTimeout becomes a
// ProviderError wrapping ErrRunTimeout rather than hanging.
func (p *OpenAI) waitForRun(ctx context.Context, threadID, runID string) error {
	deadline := time.Now().Add(p.runTimeout)
	for {
		if time.Now().After(deadline) {
			return &ProviderError{Provider: KindOpenAI, Message: "assistant run did not finish in time", Err: ErrRunTimeout}
		}

		raw, err := getJSON(ctx, p.httpClient, KindOpenAI, p.baseURL+"/threads/"+threadID+"/runs/"+runID, p.assistantHeaders())
		if err != nil {
			return err
		}
		var st runStatus
		if err := json.Unmarshal(raw, &st); err != nil {
			return &ProviderError{Provider: KindOpenAI, Message: "decode run status", Err: err}
		}

		switch st.Status {
		case "completed":
			return nil
		case "failed", "cancelled", "expired":
			return &ProviderError{Provider: KindOpenAI, Message: "assistant run " + st.Status}
		}

		select {
		case <-ctx.Done():
			return &ProviderError{Provider: KindOpenAI, Message: "run polling interrupted", Err: ctx.Err()}
		case <-time.After(p.pollInterval):
		}
	}
}

// fetchAssistantReply returns the newest assistant message text in the thread.
func (p *OpenAI) fetchAssistantReply(ctx context.Context, threadID string) (string, error) {
	raw, err := getJSON(ctx, p.httpClient, KindOpenAI, p.baseURL+"/threads/"+threadID+"/messages?order=desc&limit=10", p.assistantHeaders())
	if err != nil {
		return "", err
	}
	var msgs threadMessages
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return "", &ProviderError{Provider: KindOpenAI, Message: "decode thread messages", Err: err}
	}
	for _, m := range msgs.Data {
		if m.Role != RoleAssistant {
			continue
		}
		for _, c := range m.Content {
			if c.Type == "text" {
				return c.Text.Value, nil
			}
		}
	}
	return "", &ProviderError{Provider: KindOpenAI, Message: "no assistant reply in thread"}
}

// ─── cleanup ────────────────────────────────────────────────────────────────

// cleanupCtx detaches cleanup from request cancellation: provider-side
// resources must be reaped even when the caller aborted mid-run.
func cleanupCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

func (p *OpenAI) deleteAssistant(ctx context.Context, assistantID string) {
	if assistantID == "" {
		return
	}
	cctx, cancel := cleanupCtx(ctx)
	defer cancel()
	if err := p.doDelete(cctx, p.baseURL+"/assistants/"+assistantID); err != nil {
		slog.Warn("failed to delete ephemeral assistant", "assistant_id", assistantID, "err", err)
	}
}

func (p *OpenAI) deleteFiles(ctx context.Context, fileIDs []string) {
	if len(fileIDs) == 0 {
		return
	}
	cctx, cancel := cleanupCtx(ctx)
	defer cancel()
	for _, id := range fileIDs {
		if err := p.doDelete(cctx, p.baseURL+"/files/"+id); err != nil {
			slog.Warn("failed to delete uploaded file", "file_id", id, "err", err)
		}
	}
}

func (p *OpenAI) doDelete(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	for k, v := range p.assistantHeaders() {
		req.Header.Set(k, v)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
