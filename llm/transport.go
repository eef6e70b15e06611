package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// chatRequest is the wire shape of an OpenAI-compatible streaming
// chat-completion request.
type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	MaxTokens int       `json:"max_tokens"`
}

type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// streamDelta is one fragment forwarded off the SSE parsing goroutine.
type streamDelta struct {
	content string
	err     *Error
}

// transport performs one streaming chat-completion call against an
// OpenAI-compatible endpoint and returns a channel of content deltas.
// DeepSeek, Gemini, and OpenRouter all speak this same dialect, so one
// implementation suffices for all three backends.
type transport struct {
	httpClient *http.Client
}

func newTransport(timeout time.Duration) *transport {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &transport{httpClient: &http.Client{Timeout: timeout}}
}

func (t *transport) stream(ctx context.Context, b *backend, model string, messages []Message) (<-chan streamDelta, error) {
	body := chatRequest{
		Model:     model,
		Messages:  messages,
		Stream:    true,
		MaxTokens: 8000,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimRight(b.baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Code: ErrUpstreamError, Message: err.Error(), Retryable: true, Provider: b.name}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readErrorMessage(resp.Body)
		return nil, mapHTTPError(resp.StatusCode, msg, b.name)
	}

	ch := make(chan streamDelta)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					send(ctx, ch, streamDelta{err: &Error{Code: ErrUpstreamError, Message: err.Error(), Retryable: true, Provider: b.name}})
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk sseChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				send(ctx, ch, streamDelta{err: &Error{Code: ErrUpstreamError, Message: err.Error(), Retryable: true, Provider: b.name}})
				return
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(ctx, ch, streamDelta{content: choice.Delta.Content}) {
					return
				}
			}
		}
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- streamDelta, d streamDelta) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- d:
		return true
	}
}
