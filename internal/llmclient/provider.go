package llmclient

import (
	"context"
	"time"
)

/*
Responsibilities

- Uniform generate(prompt, options) -> text over multiple LLM providers
- Availability probing with a short timeout
- Per-request cancellation via context.Context

Each concrete provider owns its own host, model, timeout and API key; the
Client never constructs an HTTP request itself.
*/

// GenerateOptions carries the per-call knobs a provider needs, independent
// of which wire shape it speaks.
type GenerateOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func NewGenerateOptions(model string, maxTokens int, temperature float64, timeout time.Duration) GenerateOptions {
	return GenerateOptions{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Timeout:     timeout,
	}
}

// Provider is one named LLM backend speaking its own wire format.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, *LLMError)
	Available(ctx context.Context) bool
}
