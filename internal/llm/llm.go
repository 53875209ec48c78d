// Package llm defines the chat-completion abstraction the planner and the
// voice arbiter's STT callback sit on top of, and an OpenAI-compatible HTTP
// implementation. The request/response shape and the raw net/http
// implementation (no SDK) are ported from the teacher's
// core/internal/agent/provider.go and openai.go; streaming and tool-calling
// are dropped since nothing in this system needs them.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat-completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Usage reports token counts as billed by the provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the result of a chat-completion call.
type Response struct {
	Content string
	Usage   Usage
}

// Client is the minimal surface the planner and self-modifier need. Real
// deployments wire an OpenAIClient; tests substitute a fake.
type Client interface {
	Chat(ctx context.Context, req Request) (Response, error)
}

const defaultBaseURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient calls an OpenAI-compatible chat-completions endpoint over
// plain net/http, matching how the teacher talks to OpenAI-compatible
// providers without an SDK dependency.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIClient builds a client. An empty baseURL defaults to the
// official OpenAI endpoint; any other value (e.g. a local or OpenRouter
// endpoint) is used as-is so long as it ends in /chat/completions.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	} else if !strings.HasSuffix(baseURL, "/chat/completions") {
		baseURL = strings.TrimSuffix(baseURL, "/") + "/chat/completions"
	}
	return &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat issues one blocking chat-completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm: transport error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("llm: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, fmt.Errorf("llm: decode response: %w", err)
	}
	if parsed.Error != nil {
		return Response{}, fmt.Errorf("llm: provider error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("llm: unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("llm: empty choices in response")
	}

	return Response{
		Content: parsed.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}
