package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

const ollamaDefaultHost = "http://localhost:11434"

// OllamaProvider talks to a local Ollama daemon. It never requires an API
// key: Available just checks that something is listening.
type OllamaProvider struct {
	httpClient *http.Client
	host       string
	model      string
	name       string
}

func NewOllamaProvider(httpClient *http.Client, host, model string) OllamaProvider {
	if host == "" {
		host = ollamaDefaultHost
	}
	return OllamaProvider{httpClient: httpClient, host: host, model: model, name: "ollama"}
}

// NewOllamaProviderNamedForTest builds an OllamaProvider registered under a
// caller-chosen name, so tests can exercise the Client's fallback ordering
// with two distinct Ollama-shaped backends.
func NewOllamaProviderNamedForTest(httpClient *http.Client, host, model, name string) OllamaProvider {
	p := NewOllamaProvider(httpClient, host, model)
	p.name = name
	return p
}

func (p OllamaProvider) Name() string { return p.name }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (p OllamaProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, *LLMError) {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	reqBody, marshalErr := json.Marshal(ollamaRequest{Model: model, Prompt: prompt, Stream: false})
	if marshalErr != nil {
		return "", &LLMError{Provider: p.Name(), Message: marshalErr.Error(), Cause: ErrCauseMalformedReply}
	}

	reqCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.host+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", &LLMError{Provider: p.Name(), Message: err.Error(), Cause: ErrCauseTransport}
	}
	req.Header.Set("Content-Type", "application/json")

	return doGenerateRequest(p.httpClient, req, p.Name(), func(body []byte) (string, error) {
		var parsed ollamaResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", err
		}
		return parsed.Response, nil
	})
}

func (p OllamaProvider) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}
