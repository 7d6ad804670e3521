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

const openAIDefaultHost = "https://api.openai.com/v1"

// OpenAIProvider speaks the Chat Completions shape, which is also what
// most OpenAI-compatible gateways expose behind a custom base URL.
type OpenAIProvider struct {
	httpClient *http.Client
	host       string
	model      string
	apiKey     string
}

func NewOpenAIProvider(httpClient *http.Client, host, model, apiKey string) OpenAIProvider {
	if host == "" {
		host = openAIDefaultHost
	}
	return OpenAIProvider{httpClient: httpClient, host: host, model: model, apiKey: apiKey}
}

func (p OpenAIProvider) Name() string { return "openai" }

type openAIRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
}

type openAIChoice struct {
	Message openAIChatMessage `json:"message"`
}

func (p OpenAIProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, *LLMError) {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	reqBody, marshalErr := json.Marshal(openAIRequest{
		Model:       model,
		Messages:    []openAIChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
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

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.host+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", &LLMError{Provider: p.Name(), Message: err.Error(), Cause: ErrCauseTransport}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	return doGenerateRequest(p.httpClient, req, p.Name(), func(body []byte) (string, error) {
		var parsed openAIResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", err
		}
		if len(parsed.Choices) == 0 {
			return "", fmt.Errorf("no choices in response")
		}
		return parsed.Choices[0].Message.Content, nil
	})
}

func (p OpenAIProvider) Available(ctx context.Context) bool {
	if p.apiKey == "" {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.host+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 500 && resp.StatusCode != 401 && resp.StatusCode != 403
}
