package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"nexus/config"
	"nexus/internal/domain"
	"nexus/internal/port"
)

func openTestStore(t *testing.T) (*BoltStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	return st, path
}

func TestBoltStore_DocumentLifecycle(t *testing.T) {
	st, _ := openTestStore(t)
	defer st.Close()

	now := time.Now()
	doc := domain.Document{
		ID:          "doc1",
		Source:      domain.SourceHedgeDoc,
		Title:       "Notes",
		Text:        "The sky is blue.",
		ContentHash: "abc",
		Status:      domain.StatusIngested,
		ChunkIDs:    []string{"c1", "c2"},
		UpdatedAt:   now,
	}
	if err := st.PutDoc(doc); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetDoc("doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != doc.Text || got.Status != domain.StatusIngested || len(got.ChunkIDs) != 2 {
		t.Errorf("unexpected document: %+v", got)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("expected UpdatedAt %v, got %v", now, got.UpdatedAt)
	}

	got.Text = "Grass is green."
	got.Status = domain.StatusFailed
	if err := st.PutDoc(got); err != nil {
		t.Fatal(err)
	}
	again, _ := st.GetDoc("doc1")
	if again.Text != "Grass is green." || again.Status != domain.StatusFailed {
		t.Errorf("expected text and status updated, got %+v", again)
	}

	docs, err := st.ListDocs()
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Text != "" {
		t.Errorf("expected one listed doc without text, got %+v", docs)
	}

	if err := st.DeleteDoc("doc1"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetDoc("doc1"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestBoltStore_Summaries(t *testing.T) {
	st, _ := openTestStore(t)
	defer st.Close()

	if _, err := st.GetSummary("doc1"); !errors.Is(err, domain.ErrSummaryNotFound) {
		t.Errorf("expected ErrSummaryNotFound, got %v", err)
	}
	if err := st.PutSummary(domain.Summary{DocID: "doc1", Text: "short", Model: "m"}); err != nil {
		t.Fatal(err)
	}
	s, err := st.GetSummary("doc1")
	if err != nil || s.Text != "short" {
		t.Errorf("unexpected summary %+v, %v", s, err)
	}
}

func TestBoltVectorIndex_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	st, path := openTestStore(t)

	idx, err := NewBoltVectorIndex(st.DB(), 2)
	if err != nil {
		t.Fatal(err)
	}
	records := []port.VectorRecord{
		{ID: "c1", Vector: []float32{1, 0}, Metadata: map[string]string{port.MetaDocID: "d1"}, Text: "grass is green"},
		{ID: "c2", Vector: []float32{0, 1}, Metadata: map[string]string{port.MetaDocID: "d2"}, Text: "sky is blue"},
	}
	if err := idx.Upsert(ctx, records); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(ctx, []string{"c2"}); err != nil {
		t.Fatal(err)
	}
	st.Close()

	st, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	idx, err = NewBoltVectorIndex(st.DB(), 2)
	if err != nil {
		t.Fatal(err)
	}

	n, _ := idx.Count(ctx)
	if n != 1 {
		t.Fatalf("expected 1 vector after reopen, got %d", n)
	}
	matches, err := idx.Search(ctx, []float32{1, 0}, 5, port.InDocs("d1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Text != "grass is green" {
		t.Errorf("unexpected matches %+v", matches)
	}
}

func TestBoltVectorIndex_ClosedDatabase(t *testing.T) {
	ctx := context.Background()
	st, _ := openTestStore(t)
	idx, err := NewBoltVectorIndex(st.DB(), 2)
	if err != nil {
		t.Fatal(err)
	}
	st.Close()

	err = idx.Upsert(ctx, []port.VectorRecord{{ID: "c1", Vector: []float32{1, 0}}})
	if !domain.IsIndexUnavailable(err) {
		t.Errorf("expected IndexUnavailableError on upsert, got %v", err)
	}
	if _, err := idx.Search(ctx, []float32{1, 0}, 1, port.Filter{}); !domain.IsIndexUnavailable(err) {
		t.Errorf("expected IndexUnavailableError on search, got %v", err)
	}
	if err := idx.Delete(ctx, []string{"c1"}); !domain.IsIndexUnavailable(err) {
		t.Errorf("expected IndexUnavailableError on delete, got %v", err)
	}
}

func TestOpen_RebuildsOnConfigChange(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nexus.db")
	cfg := config.DefaultConfig()
	cfg.Embedding.Dimension = 2

	st, idx, result, err := Open(path, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !result.NeedsMigration {
		t.Error("expected a fresh database to need schema initialisation")
	}
	st.PutDoc(domain.Document{ID: "d1", Status: domain.StatusIngested})
	idx.Upsert(ctx, []port.VectorRecord{{ID: "c1", Vector: []float32{1, 0}, Metadata: map[string]string{port.MetaDocID: "d1"}}})
	st.Close()

	// same config: nothing to do
	st, idx, result, err = Open(path, cfg, 2)
	if err != nil {
		t.Fatal(err)
	}
	if result.NeedsRebuild || result.NeedsMigration {
		t.Errorf("expected no migration, got %+v", result)
	}
	if n, _ := idx.Count(ctx); n != 1 {
		t.Errorf("expected vector to survive, got %d", n)
	}
	st.Close()

	// different embedding dimension: everything is stale
	cfg.Embedding.Dimension = 3
	st, idx, result, err = Open(path, cfg, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if !result.NeedsRebuild {
		t.Fatalf("expected rebuild, got %+v", result)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Errorf("expected vectors to be cleared, got %d", n)
	}
	if docs, _ := st.ListDocs(); len(docs) != 0 {
		t.Errorf("expected documents to be cleared, got %d", len(docs))
	}
}

func TestComputeConfigHash(t *testing.T) {
	a := config.DefaultConfig()
	b := config.DefaultConfig()
	if ComputeConfigHash(a) != ComputeConfigHash(b) {
		t.Error("expected equal configs to hash equally")
	}
	b.Retrieve.TopK = 99
	if ComputeConfigHash(a) != ComputeConfigHash(b) {
		t.Error("retrieval settings must not affect the index hash")
	}
	b.Chunk.MaxTokens = 99
	if ComputeConfigHash(a) == ComputeConfigHash(b) {
		t.Error("chunk settings must affect the index hash")
	}
}
