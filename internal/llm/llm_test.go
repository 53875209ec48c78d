package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatParsesContentAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"say":"hi"}`}},
			},
			"usage": map[string]int{"prompt_tokens": 120, "completion_tokens": 40},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key", srv.URL+"/chat/completions")
	resp, err := c.Chat(context.Background(), Request{Model: "gpt-4.1-mini", Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != `{"say":"hi"}` {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if resp.Usage.InputTokens != 120 || resp.Usage.OutputTokens != 40 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestChatReturnsErrorOnProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "invalid api key"},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient("bad-key", srv.URL+"/chat/completions")
	_, err := c.Chat(context.Background(), Request{Model: "gpt-4.1-mini"})
	if err == nil {
		t.Fatalf("expected an error for a provider error response")
	}
}

func TestChatDefaultsBaseURLSuffix(t *testing.T) {
	c := NewOpenAIClient("key", "https://example.com/v1")
	if c.baseURL != "https://example.com/v1/chat/completions" {
		t.Fatalf("unexpected baseURL: %q", c.baseURL)
	}
}
