package retriever

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"nexus/internal/adapter/analyzer"
	"nexus/internal/adapter/chunker"
	"nexus/internal/adapter/embedding"
	"nexus/internal/adapter/memstore"
	"nexus/internal/domain"
	"nexus/internal/port"
)

// countingEmbedder wraps the hash embedder and counts Embed calls.
type countingEmbedder struct {
	*embedding.HashEmbedder
	calls atomic.Int64
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	return e.EmbedBatch(ctx, texts)
}

type fixture struct {
	index    *memstore.VectorIndex
	store    *memstore.MemoryStore
	embedder *countingEmbedder
	chunker  *chunker.TokenChunker
}

func newFixture(t *testing.T, maxTokens, overlap int) *fixture {
	t.Helper()
	c, err := chunker.NewTokenChunker(maxTokens, overlap, analyzer.NewTokenizer())
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		index:    memstore.NewVectorIndex(256),
		store:    memstore.NewMemoryStore(),
		embedder: &countingEmbedder{HashEmbedder: embedding.NewHashEmbedder(256)},
		chunker:  c,
	}
}

func (f *fixture) add(t *testing.T, id, title, text string, status domain.IngestionStatus) {
	t.Helper()
	doc := domain.Document{ID: id, Title: title, Status: status}
	chunks, err := f.chunker.Chunk(doc, text)
	if err != nil {
		t.Fatal(err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, _ := f.embedder.EmbedBatch(context.Background(), texts)
	records := make([]port.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = port.ChunkRecord(c, vecs[i])
		doc.ChunkIDs = append(doc.ChunkIDs, c.ID)
	}
	if err := f.index.Upsert(context.Background(), records); err != nil {
		t.Fatal(err)
	}
	if err := f.store.PutDoc(doc); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) retriever(minScore float64) *SemanticRetriever {
	return NewSemanticRetriever(f.index, f.embedder, NewStoreCatalog(f.store), minScore)
}

func TestRetrieve_SkyAndGrass(t *testing.T) {
	f := newFixture(t, 256, 32)
	f.add(t, "doc1", "colors.md", "The sky is blue. Grass is green.", domain.StatusIngested)

	passages, err := f.retriever(0).Retrieve(context.Background(), "What color is grass?", []string{"doc1"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 1 {
		t.Fatalf("expected 1 passage, got %d", len(passages))
	}
	p := passages[0]
	if !strings.Contains(p.Text, "Grass is green") {
		t.Errorf("expected grass passage, got %q", p.Text)
	}
	if p.Title != "colors.md" || p.DocID != "doc1" {
		t.Errorf("unexpected citation: %+v", p)
	}
	if p.Score <= 0 {
		t.Errorf("expected positive score, got %f", p.Score)
	}
}

func TestRetrieve_EmptyScopeSkipsEmbedding(t *testing.T) {
	f := newFixture(t, 256, 32)
	f.add(t, "doc1", "", "The sky is blue.", domain.StatusIngested)
	f.add(t, "doc2", "", "Grass is green.", domain.StatusFailed)

	r := f.retriever(0)
	for _, scope := range [][]string{nil, {}, {"missing"}, {"doc2"}} {
		passages, err := r.Retrieve(context.Background(), "sky", scope, 5)
		if err != nil {
			t.Fatalf("scope %v: %v", scope, err)
		}
		if len(passages) != 0 {
			t.Errorf("scope %v: expected no passages, got %d", scope, len(passages))
		}
	}
	if n := f.embedder.calls.Load(); n != 0 {
		t.Errorf("expected 0 embedding calls, got %d", n)
	}
}

func TestRetrieve_ScopeRestricts(t *testing.T) {
	f := newFixture(t, 256, 32)
	f.add(t, "doc1", "", "The sky is blue.", domain.StatusIngested)
	f.add(t, "doc2", "", "The sky is grey over the sea.", domain.StatusIngested)

	passages, err := f.retriever(0).Retrieve(context.Background(), "sky", []string{"doc2"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range passages {
		if p.DocID != "doc2" {
			t.Errorf("passage from out-of-scope document %s", p.DocID)
		}
	}
}

func TestRetrieve_ScoresNonIncreasingAndUnique(t *testing.T) {
	f := newFixture(t, 4, 1)
	f.add(t, "a", "", "apples grow on trees in the orchard near the river bank", domain.StatusIngested)
	f.add(t, "b", "", "apples grow on trees in the orchard near the river bank", domain.StatusIngested)
	f.add(t, "c", "", "rivers flow to the sea and trees drink from rivers", domain.StatusIngested)

	passages, err := f.retriever(0).Retrieve(context.Background(), "apples trees river", []string{"a", "b", "c"}, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) == 0 {
		t.Fatal("expected passages")
	}
	seen := make(map[string]bool)
	for i, p := range passages {
		if i > 0 && p.Score > passages[i-1].Score {
			t.Errorf("scores increase at %d: %f > %f", i, p.Score, passages[i-1].Score)
		}
		if seen[p.Text] {
			t.Errorf("duplicate span %q", p.Text)
		}
		seen[p.Text] = true
	}
}

func TestRetrieve_MinScore(t *testing.T) {
	f := newFixture(t, 256, 32)
	f.add(t, "doc1", "", "The sky is blue.", domain.StatusIngested)

	passages, err := f.retriever(0.999).Retrieve(context.Background(), "grass", []string{"doc1"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 0 {
		t.Errorf("expected threshold to drop unrelated passage, got %+v", passages)
	}
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	f := newFixture(t, 256, 32)
	_, err := f.retriever(0).Retrieve(context.Background(), "  ", []string{"doc1"}, 5)
	if !errors.Is(err, domain.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestMergeAdjacent(t *testing.T) {
	// "one two three four five six" with chunks of 3 tokens, overlap 1
	text := "one two three four five six"
	chunk := func(id string, idx, start, end int) domain.Chunk {
		return domain.Chunk{ID: id, DocID: "d", Index: idx, Start: start, End: end, Text: text[start:end]}
	}
	c0 := chunk("c0", 0, 0, 13)  // one two three
	c1 := chunk("c1", 1, 8, 23)  // three four five
	c2 := chunk("c2", 2, 19, 27) // five six
	other := domain.Chunk{ID: "x", DocID: "e", Index: 3, Start: 0, End: 3, Text: "abc"}

	passages := MergeAdjacent([]domain.ScoredChunk{
		{Chunk: c2, Score: 0.4},
		{Chunk: other, Score: 0.9},
		{Chunk: c0, Score: 0.7},
		{Chunk: c1, Score: 0.5},
	})
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %+v", passages)
	}
	merged := passages[0]
	if merged.Text != text {
		t.Errorf("expected union text %q, got %q", text, merged.Text)
	}
	if merged.Score != 0.7 {
		t.Errorf("expected max score 0.7, got %f", merged.Score)
	}
	if merged.FirstIndex != 0 || merged.LastIndex != 2 || len(merged.ChunkIDs) != 3 {
		t.Errorf("unexpected merged range: %+v", merged)
	}
	if merged.Start != 0 || merged.End != 27 {
		t.Errorf("unexpected offsets [%d:%d]", merged.Start, merged.End)
	}
}

func TestMergeAdjacent_Gap(t *testing.T) {
	a := domain.Chunk{ID: "a", DocID: "d", Index: 0, Start: 0, End: 3, Text: "one"}
	c := domain.Chunk{ID: "c", DocID: "d", Index: 2, Start: 8, End: 13, Text: "three"}
	passages := MergeAdjacent([]domain.ScoredChunk{{Chunk: a, Score: 1}, {Chunk: c, Score: 1}})
	if len(passages) != 2 {
		t.Errorf("expected non-adjacent chunks to stay apart, got %d", len(passages))
	}
}

func TestRankAndDedupe(t *testing.T) {
	passages := []domain.Passage{
		{DocID: "b", FirstIndex: 0, Text: "same", Score: 0.5},
		{DocID: "a", FirstIndex: 1, Text: "other", Score: 0.5},
		{DocID: "a", FirstIndex: 0, Text: "same", Score: 0.5},
		{DocID: "c", FirstIndex: 0, Text: "top", Score: 0.9},
	}
	Rank(passages)
	passages = DedupeSpans(passages)

	want := []string{"c/top", "a/same", "a/other"}
	if len(passages) != len(want) {
		t.Fatalf("expected %d passages, got %+v", len(want), passages)
	}
	for i, p := range passages {
		if got := p.DocID + "/" + p.Text; got != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got)
		}
	}
}
