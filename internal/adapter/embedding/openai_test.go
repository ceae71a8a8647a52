package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		// answer out of order to exercise index mapping
		resp := embeddingResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{Index: i, Embedding: []float32{float32(i), 0, 1}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOpenAICompatibleEmbedder("secret", "test-model", srv.URL, 3, time.Second)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
	if e.Dimension() != 3 || e.ModelName() != "test-model" {
		t.Errorf("unexpected metadata: %d %s", e.Dimension(), e.ModelName())
	}
}

func TestOpenAIEmbedder_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewOpenAICompatibleEmbedder("k", "m", srv.URL, 3, time.Second)
	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Permanent() {
		t.Error("429 should not be permanent")
	}
}

func TestOpenAIEmbedder_MissingVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Data: []embeddingData{{Index: 0, Embedding: []float32{1}}}})
	}))
	defer srv.Close()

	e := NewOpenAICompatibleEmbedder("k", "m", srv.URL, 1, time.Second)
	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error for missing vector")
	}
}

func TestNewOpenAIEmbedder_MissingKey(t *testing.T) {
	t.Setenv("NEXUS_TEST_EMPTY_KEY", "")
	if _, err := NewOpenAIEmbedder("NEXUS_TEST_EMPTY_KEY", "text-embedding-3-small", 0, 0); err == nil {
		t.Error("expected error when API key is missing")
	}
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	vecs, err := e.EmbedBatch(context.Background(), []string{"Grass is green.", "grass green", "The sky is blue."})
	if err != nil {
		t.Fatal(err)
	}
	same := cosine(vecs[0], vecs[1])
	diff := cosine(vecs[0], vecs[2])
	if same < 0.99 {
		t.Errorf("expected identical content words to embed identically, got %f", same)
	}
	if diff >= same {
		t.Errorf("expected unrelated text to score lower: %f >= %f", diff, same)
	}

	again, _ := e.EmbedBatch(context.Background(), []string{"Grass is green."})
	for i := range again[0] {
		if again[0][i] != vecs[0][i] {
			t.Fatal("hash embedder is not deterministic")
		}
	}
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
