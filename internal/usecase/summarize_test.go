package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"nexus/internal/adapter/memstore"
	"nexus/internal/domain"
	"nexus/internal/port"
)

func newSummarizeFixture(t *testing.T, maxChars int) (*SummarizeUseCase, *memstore.MemoryStore, *scriptedLLM) {
	t.Helper()
	store := memstore.NewMemoryStore()
	if err := store.PutDoc(domain.Document{ID: "D", Text: skyText, ContentHash: ContentHash(skyText), Status: domain.StatusIngested}); err != nil {
		t.Fatal(err)
	}
	llm := &scriptedLLM{script: answerWith("Colors ", "of nature.")}
	return NewSummarizeUseCase(store, llm, maxChars, nil), store, llm
}

func TestSummarize_SavesCompletedSummary(t *testing.T) {
	uc, _, llm := newSummarizeFixture(t, 8000)

	stream, err := uc.Summarize(context.Background(), "D")
	if err != nil {
		t.Fatal(err)
	}
	text, err := stream.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if text != "Colors of nature." {
		t.Errorf("unexpected summary %q", text)
	}

	saved, err := uc.Summary("D")
	if err != nil {
		t.Fatal(err)
	}
	if saved.Text != text || saved.Model != "scripted" || saved.ContentHash != ContentHash(skyText) {
		t.Errorf("unexpected stored summary: %+v", saved)
	}

	llm.mu.Lock()
	user := llm.calls[0][1].Content
	llm.mu.Unlock()
	if !strings.HasSuffix(user, skyText) {
		t.Errorf("expected document text in prompt, got %q", user)
	}
}

func TestSummarize_FailureKeepsPreviousSummary(t *testing.T) {
	uc, store, llm := newSummarizeFixture(t, 8000)
	if err := store.PutSummary(domain.Summary{DocID: "D", Text: "old"}); err != nil {
		t.Fatal(err)
	}
	llm.script = func(int) []port.Fragment {
		return []port.Fragment{{Text: "new but"}, {Err: errors.New("overloaded")}}
	}

	stream, err := uc.Summarize(context.Background(), "D")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Wait(); !errors.As(err, new(*domain.GenerationError)) {
		t.Errorf("expected GenerationError, got %v", err)
	}

	saved, err := uc.Summary("D")
	if err != nil {
		t.Fatal(err)
	}
	if saved.Text != "old" {
		t.Errorf("failed stream replaced the summary with %q", saved.Text)
	}
}

func TestSummarize_Errors(t *testing.T) {
	uc, store, _ := newSummarizeFixture(t, 8000)
	if err := store.PutDoc(domain.Document{ID: "E", Text: "  "}); err != nil {
		t.Fatal(err)
	}

	if _, err := uc.Summarize(context.Background(), "missing"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := uc.Summarize(context.Background(), "E"); !errors.Is(err, domain.ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}
	if _, err := uc.Summary("D"); !errors.Is(err, domain.ErrSummaryNotFound) {
		t.Errorf("expected ErrSummaryNotFound, got %v", err)
	}
}

func TestSummarize_TruncatesInput(t *testing.T) {
	uc, _, llm := newSummarizeFixture(t, 7)

	stream, err := uc.Summarize(context.Background(), "D")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Wait(); err != nil {
		t.Fatal(err)
	}
	llm.mu.Lock()
	user := llm.calls[0][1].Content
	llm.mu.Unlock()
	if !strings.HasSuffix(user, "\n\nThe sky") {
		t.Errorf("expected input cut to 7 characters, got %q", user)
	}
}

func TestTruncateChars(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 0, "hello"},
		{"hello", 3, "hel"},
		{"hello", 10, "hello"},
		{"héllo", 2, "hé"},
		{"日本語", 1, "日"},
	}
	for _, tt := range tests {
		if got := truncateChars(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateChars(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
