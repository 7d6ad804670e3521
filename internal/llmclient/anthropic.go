package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const anthropicDefaultHost = "https://api.anthropic.com"

// AnthropicProvider speaks the Messages API shape directly over net/http;
// the module carries no Anthropic SDK dependency.
type AnthropicProvider struct {
	httpClient *http.Client
	host       string
	model      string
	apiKey     string
}

func NewAnthropicProvider(httpClient *http.Client, host, model, apiKey string) AnthropicProvider {
	if host == "" {
		host = anthropicDefaultHost
	}
	return AnthropicProvider{httpClient: httpClient, host: host, model: model, apiKey: apiKey}
}

func (p AnthropicProvider) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (p AnthropicProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, *LLMError) {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	reqBody, marshalErr := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if marshalErr != nil {
		return "", &LLMError{Provider: p.Name(), Message: marshalErr.Error(), Cause: ErrCauseMalformedReply}
	}

	reqCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.host+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return "", &LLMError{Provider: p.Name(), Message: err.Error(), Cause: ErrCauseTransport}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	return doGenerateRequest(p.httpClient, req, p.Name(), func(body []byte) (string, error) {
		var parsed anthropicResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", err
		}
		for _, block := range parsed.Content {
			if block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", fmt.Errorf("no text content block in response")
	})
}

func (p AnthropicProvider) Available(ctx context.Context) bool {
	if p.apiKey == "" {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodPost, p.host+"/v1/messages", bytes.NewReader([]byte(`{"model":"`+p.model+`","max_tokens":1,"messages":[{"role":"user","content":"ping"}]}`)))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 500 && resp.StatusCode != 401 && resp.StatusCode != 403
}
