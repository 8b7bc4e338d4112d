package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/cohere"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Provider identifies a hosted model family.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderCohere Provider = "cohere"
	ProviderOllama Provider = "ollama"
)

const defaultOllamaURL = "http://localhost:11434"

// Options configures a LangChain-backed client.
type Options struct {
	Provider Provider `json:"provider" koanf:"provider"`
	APIKey   string   `json:"-" koanf:"api_key"`
	BaseURL  string   `json:"base_url,omitempty" koanf:"base_url"`
	Model    string   `json:"model" koanf:"model"`

	// RequestInterval and Burst feed the outbound rate limiter. Zero values
	// fall back to one request per second with a burst of five.
	RequestInterval time.Duration `json:"request_interval" koanf:"request_interval"`
	Burst           int           `json:"burst" koanf:"burst"`
}

// LangChainClient adapts a langchaingo model to the Client contract and
// throttles outbound calls.
type LangChainClient struct {
	llm     llms.Model
	limiter *rate.Limiter
	log     zerolog.Logger
}

var _ Client = (*LangChainClient)(nil)

// NewLangChainClient builds the provider-specific model and wraps it.
func NewLangChainClient(ctx context.Context, opts Options, log zerolog.Logger) (*LangChainClient, error) {
	var model llms.Model
	var err error

	switch opts.Provider {
	case ProviderOpenAI:
		model, err = newOpenAIModel(opts)
	case ProviderGemini:
		model, err = newGeminiModel(ctx, opts)
	case ProviderClaude:
		model, err = newAnthropicModel(opts)
	case ProviderCohere:
		model, err = newCohereModel(opts)
	case ProviderOllama:
		model, err = newOllamaModel(opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", opts.Provider, err)
	}

	interval := opts.RequestInterval
	if interval <= 0 {
		interval = time.Second
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 5
	}

	log.Debug().
		Str("provider", string(opts.Provider)).
		Str("model", opts.Model).
		Dur("request_interval", interval).
		Msg("oracle client ready")

	return &LangChainClient{
		llm:     model,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
		log:     log,
	}, nil
}

// Complete sends one prompt and returns the raw completion text.
func (c *LangChainClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}

	callOpts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
	}
	if req.Model != "" {
		callOpts = append(callOpts, llms.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}

	c.log.Debug().
		Str("model", req.Model).
		Float64("temperature", req.Temperature).
		Int("prompt_bytes", len(req.Prompt)).
		Msg("sending completion request")

	text, err := llms.GenerateFromSinglePrompt(ctx, c.llm, req.Prompt, callOpts...)
	if err != nil {
		return Response{}, fmt.Errorf("completion failed: %w", err)
	}

	return Response{Text: text}, nil
}

func newOpenAIModel(opts Options) (llms.Model, error) {
	o := []openai.Option{
		openai.WithToken(opts.APIKey),
		openai.WithModel(opts.Model),
	}
	if opts.BaseURL != "" {
		o = append(o, openai.WithBaseURL(opts.BaseURL))
	}
	return openai.New(o...)
}

func newGeminiModel(ctx context.Context, opts Options) (llms.Model, error) {
	o := []googleai.Option{
		googleai.WithAPIKey(opts.APIKey),
	}
	if opts.Model != "" {
		o = append(o, googleai.WithDefaultModel(opts.Model))
	}
	return googleai.New(ctx, o...)
}

func newAnthropicModel(opts Options) (llms.Model, error) {
	return anthropic.New(
		anthropic.WithToken(opts.APIKey),
		anthropic.WithModel(opts.Model),
	)
}

func newCohereModel(opts Options) (llms.Model, error) {
	o := []cohere.Option{
		cohere.WithToken(opts.APIKey),
		cohere.WithModel(opts.Model),
	}
	if opts.BaseURL != "" {
		o = append(o, cohere.WithBaseURL(opts.BaseURL))
	}
	return cohere.New(o...)
}

func newOllamaModel(opts Options) (llms.Model, error) {
	url := opts.BaseURL
	if url == "" {
		url = defaultOllamaURL
	}
	return ollama.New(
		ollama.WithServerURL(url),
		ollama.WithModel(opts.Model),
	)
}
