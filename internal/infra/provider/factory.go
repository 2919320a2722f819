package provider

// Provider identifiers: the closed enumeration a model config may name.
const (
	KindOpenAI  = "openai"
	KindClaude  = "claude"
	KindGroq    = "groq"
	KindOllama  = "ollama"
	KindWebhook = "webhook"
)

// ModelSpec is the credentials-independent slice of a model configuration an
// adapter needs: which provider, which model, and (webhook only) where.
type ModelSpec struct {
	Provider string
	Model    string
	Endpoint string
}

// Credentials holds one opaque secret per hosted provider plus the base URLs,
// resolved from process-level configuration.
type Credentials struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GroqAPIKey      string

	OpenAIBaseURL    string
	AnthropicBaseURL string
	GroqBaseURL      string
	OllamaBaseURL    string
}

// New maps a model spec to its adapter. Pure switch over the provider
// enumeration; fails with *UnsupportedProviderError for anything else.
func New(spec ModelSpec, creds Credentials, files FileReader) (Provider, error) {
	switch spec.Provider {
	case KindOpenAI:
		return NewOpenAI(creds.OpenAIBaseURL, creds.OpenAIAPIKey, spec.Model, files), nil
	case KindClaude:
		return NewClaude(creds.AnthropicBaseURL, creds.AnthropicAPIKey, spec.Model, files), nil
	case KindGroq:
		return NewGroq(creds.GroqBaseURL, creds.GroqAPIKey, spec.Model, files), nil
	case KindOllama:
		return NewOllama(creds.OllamaBaseURL, spec.Model, files), nil
	case KindWebhook:
		return NewWebhook(spec.Endpoint, spec.Model, files), nil
	default:
		return nil, &UnsupportedProviderError{Provider: spec.Provider}
	}
}
