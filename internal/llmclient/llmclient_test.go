package llmclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contextcrawl/contextcrawl/internal/llmclient"
)

func TestAnthropicProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing x-api-key header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "hello from anthropic"}},
		})
	}))
	defer server.Close()

	p := llmclient.NewAnthropicProvider(server.Client(), server.URL, "claude-3", "test-key")
	text, err := p.Generate(context.Background(), "hi", llmclient.NewGenerateOptions("", 100, 0, 5*time.Second))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "hello from anthropic" {
		t.Errorf("text = %q", text)
	}
}

func TestOpenAIProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing Authorization header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "hello from openai"}}},
		})
	}))
	defer server.Close()

	p := llmclient.NewOpenAIProvider(server.Client(), server.URL, "gpt-4o-mini", "test-key")
	text, err := p.Generate(context.Background(), "hi", llmclient.NewGenerateOptions("", 0, 0, 5*time.Second))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "hello from openai" {
		t.Errorf("text = %q", text)
	}
}

func TestOllamaProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": "hello from ollama"})
	}))
	defer server.Close()

	p := llmclient.NewOllamaProvider(server.Client(), server.URL, "llama3")
	text, err := p.Generate(context.Background(), "hi", llmclient.NewGenerateOptions("", 0, 0, 5*time.Second))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "hello from ollama" {
		t.Errorf("text = %q", text)
	}
}

func TestProvider_Generate_HTTPStatusClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := llmclient.NewOllamaProvider(server.Client(), server.URL, "llama3")
	_, err := p.Generate(context.Background(), "hi", llmclient.NewGenerateOptions("", 0, 0, 5*time.Second))
	if err == nil {
		t.Fatalf("expected error on 500")
	}
	if !err.IsRetryable() {
		t.Errorf("5xx should be retryable")
	}
	if err.Cause != llmclient.ErrCauseHTTPStatus {
		t.Errorf("Cause = %v, want ErrCauseHTTPStatus", err.Cause)
	}
}

func TestClient_GenerateWithFallback(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": "ok"})
	}))
	defer working.Close()

	bad := llmclient.NewOllamaProvider(failing.Client(), failing.URL, "llama3")
	good := llmclient.NewOllamaProviderNamedForTest(working.Client(), working.URL, "llama3", "ollama-secondary")

	client := llmclient.NewClient([]llmclient.Provider{bad, good}, []string{"ollama", "ollama-secondary"}, true, nil)
	text, err := client.GenerateWithFallback(context.Background(), "hi", llmclient.NewGenerateOptions("", 0, 0, 5*time.Second))
	if err != nil {
		t.Fatalf("GenerateWithFallback failed: %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q, want ok (from the fallback provider)", text)
	}
}

func TestClient_Generate_UnknownProvider(t *testing.T) {
	client := llmclient.NewClient(nil, nil, false, nil)
	_, err := client.Generate(context.Background(), "nope", "hi", llmclient.GenerateOptions{})
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if err.Cause != llmclient.ErrCauseNoProvider {
		t.Errorf("Cause = %v, want ErrCauseNoProvider", err.Cause)
	}
}
