package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"nexus/config"
	"nexus/internal/port"
)

// OpenAIChat streams completions from an OpenAI-compatible
// /chat/completions endpoint (OpenAI, LM Studio, Ollama, vLLM).
type OpenAIChat struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	timeout     time.Duration
	client      *http.Client
}

var _ port.LLM = (*OpenAIChat)(nil)

type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []port.Message `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
	Stream      bool           `json:"stream"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// StatusError is a non-200 answer from the chat endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat API returned status %d: %s", e.StatusCode, e.Body)
}

// NewOpenAIChat builds a client from cfg. The API key is optional so local
// servers work without one.
func NewOpenAIChat(cfg config.LLMConfig) *OpenAIChat {
	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	return &OpenAIChat{
		apiKey:      apiKey,
		model:       cfg.Model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		// No client timeout: a stream is bounded by its own deadline.
		client: &http.Client{},
	}
}

func (c *OpenAIChat) ModelName() string {
	return c.model
}

// Stream starts a completion. The configured timeout bounds the whole
// stream, from request to the last fragment.
func (c *OpenAIChat) Stream(ctx context.Context, messages []port.Message) (<-chan port.Fragment, error) {
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	out, err := c.stream(ctx, cancel, messages)
	if err != nil {
		cancel()
		return nil, err
	}
	return out, nil
}

func (c *OpenAIChat) stream(ctx context.Context, cancel context.CancelFunc, messages []port.Message) (<-chan port.Fragment, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	out := make(chan port.Fragment)
	go func() {
		defer cancel()
		c.readStream(ctx, resp.Body, out)
	}()
	return out, nil
}

// readStream turns server-sent events into fragments. Only a [DONE] event
// produces a Done fragment; anything else ending the body is an error.
func (c *OpenAIChat) readStream(ctx context.Context, body io.ReadCloser, out chan<- port.Fragment) {
	defer close(out)
	defer body.Close()

	send := func(f port.Fragment) bool {
		select {
		case out <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			send(port.Fragment{Done: true})
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			send(port.Fragment{Err: fmt.Errorf("failed to decode stream event: %w", err)})
			return
		}
		if chunk.Error != nil {
			send(port.Fragment{Err: fmt.Errorf("chat API error: %s", chunk.Error.Message)})
			return
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if !send(port.Fragment{Text: choice.Delta.Content}) {
				return
			}
		}
	}

	err := scanner.Err()
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	send(port.Fragment{Err: fmt.Errorf("stream ended before completion: %w", err)})
}

// ListModels returns the ids served at /models, sorted.
func (c *OpenAIChat) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var models modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}

	ids := make([]string, 0, len(models.Data))
	for _, m := range models.Data {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *OpenAIChat) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// EmbeddingModels keeps the ids that look like embedding models.
func EmbeddingModels(ids []string) []string {
	var out []string
	for _, id := range ids {
		if strings.Contains(strings.ToLower(id), "embedding") {
			out = append(out, id)
		}
	}
	return out
}
