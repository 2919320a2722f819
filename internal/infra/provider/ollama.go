package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// visionModelHints are the model-name substrings that indicate a local model
// can analyze images. Anything else gets a placeholder notice instead.
var visionModelHints = []string{"llava", "vision", "bakllava", "moondream", "-vl"}

// Ollama calls a local Ollama instance via POST /api/generate. The whole
// conversation (system prompt included) is flattened into one newline-joined
// prompt string rather than a structured message list. Ollama does not report
// token usage, so TokensUsed is always 0.
type Ollama struct {
	baseURL    string
	model      string
	files      FileReader
	httpClient *http.Client
}

func NewOllama(baseURL, model string, files FileReader) *Ollama {
	return &Ollama{
		baseURL:    baseURL,
		model:      model,
		files:      files,
		httpClient: newHTTPClient(),
	}
}

// supportsVision is a name-substring check, the same heuristic UIs use for
// local models — there is no capability endpoint to ask.
func (p *Ollama) supportsVision() bool {
	name := strings.ToLower(p.model)
	for _, hint := range visionModelHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Images  []string       `json:"images,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (p *Ollama) SendMessage(ctx context.Context, history []ChatMessage, opts SendOptions) (*Reply, error) {
	prompt, images := p.buildPrompt(history, opts)

	options := map[string]any{}
	if opts.Temperature != 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens != 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(options) == 0 {
		options = nil
	}

	raw, err := postJSON(ctx, p.httpClient, KindOllama, p.baseURL+"/api/generate", nil, ollamaGenerateRequest{
		Model:   p.model,
		Prompt:  prompt,
		Stream:  false,
		Images:  images,
		Options: options,
	})
	if err != nil {
		return nil, err
	}

	var resp ollamaGenerateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProviderError{Provider: KindOllama, Message: "decode generate response", Err: err}
	}
	// token usage unsupported upstream
	return &Reply{Content: resp.Response, TokensUsed: 0}, nil
}

// buildPrompt joins the system prompt and every turn into a single prompt
// string and collects base64 images when the model can use them.
func (p *Ollama) buildPrompt(history []ChatMessage, opts SendOptions) (string, []string) {
	var lines []string
	if opts.SystemPrompt != "" {
		lines = append(lines, opts.SystemPrompt)
	}
	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			lines = append(lines, "Assistant: "+m.Content)
		default:
			lines = append(lines, "User: "+m.Content)
		}
	}

	var images []string
	vision := p.supportsVision()
	for _, att := range opts.Attachments {
		if isImage(att.ContentType) && !vision {
			lines = append(lines, imageSkippedNotice(att.Filename))
			continue
		}
		data, err := p.files.Read(att.StoragePath)
		if err != nil {
			if isImage(att.ContentType) {
				lines = append(lines, imageErrorNotice(att.Filename))
			} else {
				lines = append(lines, fileErrorNotice(att.Filename))
			}
			continue
		}
		if isImage(att.ContentType) {
			images = append(images, base64.StdEncoding.EncodeToString(data))
			continue
		}
		lines = append(lines, inlineTextFor(att, data))
	}

	lines = append(lines, "Assistant:")
	return strings.Join(lines, "\n"), images
}
