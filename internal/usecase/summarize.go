package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexus/internal/domain"
	"nexus/internal/logger"
	"nexus/internal/port"
)

const (
	summarySystemPrompt = "You are a helpful assistant that summarizes documents efficiently."
	summaryUserPrompt   = "Please provide a concise summary of the following document:\n\n"
)

// SummarizeUseCase streams document summaries and stores completed ones.
type SummarizeUseCase struct {
	store    port.MetadataStore
	llm      port.LLM
	maxChars int
	logger   *zap.Logger
	now      func() time.Time
}

// NewSummarizeUseCase creates a summarize use case. Documents longer than
// maxChars characters are truncated before they are sent.
func NewSummarizeUseCase(store port.MetadataStore, llm port.LLM, maxChars int, logger *zap.Logger) *SummarizeUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummarizeUseCase{
		store:    store,
		llm:      llm,
		maxChars: maxChars,
		logger:   logger,
		now:      time.Now,
	}
}

// Summarize streams a summary of the stored document. The summary is saved
// only when the stream completes; a failed or cancelled stream leaves any
// earlier summary in place.
func (u *SummarizeUseCase) Summarize(ctx context.Context, docID string) (*Stream, error) {
	doc, err := u.store.GetDoc(docID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrEmptyDocument, docID)
	}

	messages := []port.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: summaryUserPrompt + truncateChars(doc.Text, u.maxChars)},
	}

	streamCtx, cancel := context.WithCancel(ctx)
	fragments, err := u.llm.Stream(streamCtx, messages)
	if err != nil {
		cancel()
		return nil, &domain.GenerationError{Model: u.llm.ModelName(), Err: err}
	}

	log := logger.FromContext(ctx, u.logger).With(zap.String("doc_id", docID))
	complete := func(text string) error {
		summary := domain.Summary{
			DocID:       docID,
			Text:        text,
			Model:       u.llm.ModelName(),
			ContentHash: doc.ContentHash,
			GeneratedAt: u.now(),
		}
		if err := u.store.PutSummary(summary); err != nil {
			return fmt.Errorf("failed to save summary: %w", err)
		}
		log.Info("summary saved", zap.Int("bytes", len(text)))
		return nil
	}
	return newStream(streamCtx, cancel, fragments, u.llm.ModelName(), complete, nil), nil
}

// Summary returns the last completed summary of a document.
func (u *SummarizeUseCase) Summary(docID string) (domain.Summary, error) {
	return u.store.GetSummary(docID)
}

// truncateChars keeps the first n characters of s. n <= 0 keeps everything.
func truncateChars(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
