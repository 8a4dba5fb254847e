package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// chatRequest mirrors the teacher's openaiRequest (internal/protocol/
// openai_parser.go), trimmed to the fields this adapter actually sends.
type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// chatResponse mirrors the teacher's openaiResponse, trimmed to the
// generation case (no tool_calls support — the Controller never asks the
// backend to call tools).
type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model,omitempty"`
}

// HTTPAdapter talks to an OpenAI-compatible chat-completions endpoint over
// plain HTTP/JSON. It is the production Adapter implementation.
type HTTPAdapter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTPAdapter returns an adapter that POSTs to
// baseURL + "/v1/chat/completions".
func NewHTTPAdapter(baseURL, model string, timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAdapter{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAdapter) Generate(ctx context.Context, messages []Message, maxNewTokens int) (string, error) {
	return a.complete(ctx, messages, maxNewTokens, 0.0)
}

func (a *HTTPAdapter) RunWithPrompt(ctx context.Context, systemPrompt, userContent string) (string, error) {
	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userContent},
	}
	return a.complete(ctx, messages, 0, 0.2)
}

// Reset is a no-op: the HTTP backend is stateless per-request, so there is
// no server-side session to clear.
func (a *HTTPAdapter) Reset(ctx context.Context) error { return nil }

// Load is a no-op: this adapter always targets the single model configured
// at construction time.
func (a *HTTPAdapter) Load(ctx context.Context, modelName string) error { return nil }

func (a *HTTPAdapter) complete(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error) {
	reqBody := chatRequest{
		Model:       a.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	url := a.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: backend returned %d: %s", resp.StatusCode, body)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("llm: backend returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}
