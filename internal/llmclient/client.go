package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/contextcrawl/contextcrawl/internal/metadata"
)

/*
Client is the single entry point the enhancement pool calls through. It
never speaks HTTP itself; it only selects a Provider and delegates.

Explicit provider selection bypasses fallback entirely, per spec: a caller
that names a provider gets exactly that provider or an error. Callers that
don't care use GenerateWithFallback, which walks the configured order and
stops at the first provider that is both available and succeeds.
*/
type Client struct {
	providers     map[string]Provider
	fallbackOrder []string
	autoFallback  bool
	metadataSink  metadata.MetadataSink
}

func NewClient(providers []Provider, fallbackOrder []string, autoFallback bool, metadataSink metadata.MetadataSink) Client {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return Client{
		providers:     byName,
		fallbackOrder: fallbackOrder,
		autoFallback:  autoFallback,
		metadataSink:  metadataSink,
	}
}

// NewClientFromConfig builds every provider named in fallbackOrder (plus the
// explicitly selected provider, if it isn't already in that list) from
// environment-sourced API keys, following the env var convention named in
// spec.md §6 (ANTHROPIC_API_KEY, OPENAI_API_KEY, ...).
func NewClientFromConfig(
	selectedProvider string,
	model string,
	baseURL string,
	apiKeyEnv string,
	fallbackOrder []string,
	autoFallback bool,
	metadataSink metadata.MetadataSink,
) Client {
	httpClient := &http.Client{Timeout: 60 * time.Second}

	names := fallbackOrder
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	if selectedProvider != "" && !seen[selectedProvider] {
		names = append(names, selectedProvider)
	}

	var providers []Provider
	for _, name := range names {
		switch name {
		case "anthropic":
			key := os.Getenv("ANTHROPIC_API_KEY")
			if name == selectedProvider && apiKeyEnv != "" {
				key = os.Getenv(apiKeyEnv)
			}
			providers = append(providers, NewAnthropicProvider(httpClient, baseURLFor(name, selectedProvider, baseURL), model, key))
		case "openai":
			key := os.Getenv("OPENAI_API_KEY")
			if name == selectedProvider && apiKeyEnv != "" {
				key = os.Getenv(apiKeyEnv)
			}
			providers = append(providers, NewOpenAIProvider(httpClient, baseURLFor(name, selectedProvider, baseURL), model, key))
		case "ollama":
			providers = append(providers, NewOllamaProvider(httpClient, baseURLFor(name, selectedProvider, baseURL), model))
		}
	}

	return NewClient(providers, fallbackOrder, autoFallback, metadataSink)
}

// baseURLFor applies an explicitly configured base URL only to the provider
// it was configured for; other providers in the fallback chain keep their
// own default host.
func baseURLFor(providerName, selectedProvider, baseURL string) string {
	if providerName == selectedProvider {
		return baseURL
	}
	return ""
}

// Generate calls providerName directly, bypassing fallback.
func (c *Client) Generate(ctx context.Context, providerName string, prompt string, opts GenerateOptions) (string, *LLMError) {
	p, ok := c.providers[providerName]
	if !ok {
		return "", &LLMError{Message: fmt.Sprintf("unknown provider %q", providerName), Cause: ErrCauseNoProvider}
	}
	return p.Generate(ctx, prompt, opts)
}

// GenerateWithFallback tries providers in fallbackOrder until one is
// available and succeeds. With autoFallback disabled it only ever tries the
// first entry.
func (c *Client) GenerateWithFallback(ctx context.Context, prompt string, opts GenerateOptions) (string, *LLMError) {
	if len(c.fallbackOrder) == 0 {
		return "", &LLMError{Message: "no provider configured", Cause: ErrCauseNoProvider}
	}
	if !c.autoFallback {
		return c.Generate(ctx, c.fallbackOrder[0], prompt, opts)
	}

	var lastErr *LLMError
	for _, name := range c.fallbackOrder {
		p, ok := c.providers[name]
		if !ok {
			continue
		}
		if !p.Available(ctx) {
			continue
		}
		text, err := p.Generate(ctx, prompt, opts)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if c.metadataSink != nil {
			c.metadataSink.RecordError(
				time.Now(), "llmclient", "GenerateWithFallback",
				metadata.CauseNetworkFailure, err.Error(),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrField, name)},
			)
		}
	}
	if lastErr == nil {
		return "", &LLMError{Message: "no configured provider was available", Cause: ErrCauseNoProvider}
	}
	return "", &LLMError{Message: lastErr.Message, Cause: ErrCauseAllFallbacksFailed, Provider: lastErr.Provider}
}
