package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnthropicComplete(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotReq anthropicRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"content": [{"type": "text", "text": "  scored output  "}],
			"usage": {"input_tokens": 42, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "claude-test",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}

	got, err := client.Complete(context.Background(), "rate this", 1200)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if gotPath != "/messages" {
		t.Errorf("path = %q, want /messages", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion != "2023-06-01" {
		t.Errorf("anthropic-version = %q", gotVersion)
	}
	if gotReq.Model != "claude-test" || gotReq.MaxTokens != 1200 {
		t.Errorf("request model/max_tokens = %q/%d", gotReq.Model, gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}

	if got.Text != "scored output" {
		t.Errorf("text = %q, want trimmed %q", got.Text, "scored output")
	}
	if got.Usage.PromptTokens != 42 || got.Usage.CompletionTokens != 7 {
		t.Errorf("usage = %+v", got.Usage)
	}
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": {"type": "overloaded_error", "message": "overloaded"}}`))
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
	if _, err := client.Complete(context.Background(), "p", 100); err == nil {
		t.Fatal("expected error from API error envelope")
	}
}

func TestAnthropicCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
	if _, err := client.Complete(context.Background(), "p", 100); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestNewClientsRequireKey(t *testing.T) {
	if _, err := NewAnthropicClient(AnthropicConfig{}); err == nil {
		t.Error("anthropic: expected error for missing key")
	}
	if _, err := NewOpenAIClient(OpenAIConfig{}); err == nil {
		t.Error("openai: expected error for missing key")
	}
}

func TestUsageSummary(t *testing.T) {
	var s UsageSummary
	s.Add(Usage{PromptTokens: 10, CompletionTokens: 5})
	s.Add(Usage{})
	s.Merge(UsageSummary{Calls: 3, PromptTokens: 100, CompletionTokens: 50})

	if s.Calls != 5 || s.PromptTokens != 110 || s.CompletionTokens != 55 {
		t.Errorf("summary = %+v", s)
	}
}
