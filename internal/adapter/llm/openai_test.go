package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nexus/config"
	"nexus/internal/port"
)

func newTestChat(url string) *OpenAIChat {
	return NewOpenAIChat(config.LLMConfig{BaseURL: url, Model: "test-model", Temperature: 0.2})
}

// collect drains a stream into a string. It fails unless the stream ends
// with a Done fragment.
func collect(ctx context.Context, stream <-chan port.Fragment) (string, error) {
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case f, ok := <-stream:
			if !ok {
				return "", io.ErrUnexpectedEOF
			}
			if f.Err != nil {
				return "", f.Err
			}
			sb.WriteString(f.Text)
			if f.Done {
				return sb.String(), nil
			}
		}
	}
}

func TestOpenAIChat_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if !req.Stream || req.Model != "test-model" || len(req.Messages) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"The sky \"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"is blue.\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	stream, err := newTestChat(srv.URL).Stream(context.Background(), []port.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "What color is the sky?"},
	})
	if err != nil {
		t.Fatal(err)
	}
	text, err := collect(context.Background(), stream)
	if err != nil {
		t.Fatal(err)
	}
	if text != "The sky is blue." {
		t.Errorf("expected %q, got %q", "The sky is blue.", text)
	}
}

func TestOpenAIChat_TruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
	}))
	defer srv.Close()

	stream, err := newTestChat(srv.URL).Stream(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = collect(context.Background(), stream)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected unexpected EOF, got %v", err)
	}
}

func TestOpenAIChat_StreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"model crashed\"}}\n\n")
	}))
	defer srv.Close()

	stream, err := newTestChat(srv.URL).Stream(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := collect(context.Background(), stream); err == nil {
		t.Error("expected error fragment")
	}
}

func TestOpenAIChat_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestChat(srv.URL).Stream(context.Background(), nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected StatusError 404, got %v", err)
	}
}

func TestOpenAIChat_Cancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := newTestChat(srv.URL).Stream(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	first := <-stream
	if first.Text != "first" {
		t.Fatalf("expected first fragment, got %+v", first)
	}
	cancel()

	// The producer must close the channel once cancelled.
	for f := range stream {
		if f.Done {
			t.Error("cancelled stream must not complete")
		}
	}
}

func TestOpenAIChat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"slow\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	chat := NewOpenAIChat(config.LLMConfig{BaseURL: srv.URL, Model: "test-model", Timeout: 50 * time.Millisecond})
	stream, err := chat.Stream(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = collect(ctx, stream)
	if err == nil {
		t.Fatal("expected the stream to fail after its timeout")
	}
	if ctx.Err() != nil {
		t.Fatal("stream outlived its timeout")
	}
}

func TestOpenAIChat_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[{"id":"qwen2.5-7b"},{"id":"text-embedding-nomic-embed-text-v1.5"},{"id":"llama-3"}]}`)
	}))
	defer srv.Close()

	ids, err := newTestChat(srv.URL).ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"llama-3", "qwen2.5-7b", "text-embedding-nomic-embed-text-v1.5"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, ids)
	}

	emb := EmbeddingModels(ids)
	if len(emb) != 1 || emb[0] != "text-embedding-nomic-embed-text-v1.5" {
		t.Errorf("unexpected embedding models: %v", emb)
	}
}
