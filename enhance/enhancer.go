// Package enhance optionally rewrites a built prompt through an LLM before
// submission, adding cinematic detail the config author left implicit.
// Enhancement is best effort: when no provider is configured, or the LLM
// call fails, the original prompt is used unchanged.
package enhance

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/teilomillet/gollm"
	"github.com/teilomillet/gollm/llm"
)

// systemPrompt steers the rewrite. The model must return only the revised
// prompt text, with no preamble, so the output can be submitted verbatim.
const systemPrompt = `You rewrite prompts for generative video and image models.
Expand the given prompt with concrete cinematic detail: lighting, lens,
texture, atmosphere. Preserve every subject, action and style constraint
already present. Reply with the rewritten prompt only.`

// Enhancer rewrites a prompt. Implementations must return the input
// unchanged rather than fail when they cannot improve it.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
}

// Noop returns prompts unchanged. Used when no LLM provider is configured.
type Noop struct{}

func (Noop) Enhance(_ context.Context, prompt string) (string, error) {
	return prompt, nil
}

// generator is the slice of gollm.LLM the enhancer needs.
type generator interface {
	Generate(ctx context.Context, prompt *gollm.Prompt, opts ...llm.GenerateOption) (string, error)
}

// LLMEnhancer rewrites prompts through a gollm-backed model.
type LLMEnhancer struct {
	llm generator
}

// Option configures an LLMEnhancer.
type Option func(*config)

type config struct {
	provider    string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
}

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithAPIKey sets the provider API key explicitly instead of relying on
// the provider's environment variable.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithTemperature sets the rewrite temperature.
func WithTemperature(t float64) Option {
	return func(c *config) { c.temperature = t }
}

// New creates an LLMEnhancer for the given gollm provider ("openai",
// "anthropic", ...).
func New(provider string, opts ...Option) (*LLMEnhancer, error) {
	cfg := &config{
		provider:    provider,
		temperature: 0.8,
		maxTokens:   1024,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-3-5-haiku-20241022"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("enhance: creating %s LLM: %w", provider, err)
	}
	return &LLMEnhancer{llm: llm}, nil
}

// FromEnv builds an enhancer from the environment. VIDGEN_ENHANCE_PROVIDER
// selects the gollm provider; when it is unset the Noop enhancer is
// returned, so enhancement stays opt-in.
func FromEnv() (Enhancer, error) {
	provider := os.Getenv("VIDGEN_ENHANCE_PROVIDER")
	if provider == "" {
		return Noop{}, nil
	}
	var opts []Option
	if model := os.Getenv("VIDGEN_ENHANCE_MODEL"); model != "" {
		opts = append(opts, WithModel(model))
	}
	return New(provider, opts...)
}

// Enhance rewrites prompt through the LLM. An empty prompt, an LLM error,
// or an empty rewrite all fall back to the original prompt; the error is
// returned alongside it so callers can log the degradation.
func (e *LLMEnhancer) Enhance(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return prompt, nil
	}

	req := gollm.NewPrompt(prompt, gollm.WithSystemPrompt(systemPrompt, gollm.CacheTypeEphemeral))
	text, err := e.llm.Generate(ctx, req)
	if err != nil {
		return prompt, fmt.Errorf("enhance: generate: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return prompt, nil
	}
	return text, nil
}

var (
	_ Enhancer = (*LLMEnhancer)(nil)
	_ Enhancer = Noop{}
)
