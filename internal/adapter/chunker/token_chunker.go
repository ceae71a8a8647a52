package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"nexus/internal/adapter/analyzer"
	"nexus/internal/domain"
)

// TokenChunker splits text into windows of at most maxTokens tokens, each
// window starting maxTokens-overlap tokens after the previous one. Windows
// begin and end on token boundaries, so no token is ever split.
type TokenChunker struct {
	maxTokens int
	overlap   int
	tokenizer *analyzer.Tokenizer
}

func NewTokenChunker(maxTokens, overlap int, tokenizer *analyzer.Tokenizer) (*TokenChunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", domain.ErrInvalidChunkConfig, maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", domain.ErrInvalidChunkConfig, overlap, maxTokens)
	}
	return &TokenChunker{
		maxTokens: maxTokens,
		overlap:   overlap,
		tokenizer: tokenizer,
	}, nil
}

// Chunk returns the ordered chunks of text. Text without any token yields no chunks.
func (c *TokenChunker) Chunk(doc domain.Document, text string) ([]domain.Chunk, error) {
	spans := c.tokenizer.Spans(text)
	if len(spans) == 0 {
		return nil, nil
	}

	step := c.maxTokens - c.overlap
	var chunks []domain.Chunk

	for first := 0; ; first += step {
		last := first + c.maxTokens
		if last > len(spans) {
			last = len(spans)
		}

		start, end := spans[first].Start, spans[last-1].End
		body := text[start:end]
		chunks = append(chunks, domain.Chunk{
			ID:         generateChunkID(doc.ID, len(chunks), body),
			DocID:      doc.ID,
			Index:      len(chunks),
			Start:      start,
			End:        end,
			TokenCount: last - first,
			Text:       body,
		})

		if last == len(spans) {
			break
		}
	}

	return chunks, nil
}

func generateChunkID(docID string, index int, body string) string {
	sum := sha256.Sum256([]byte(body))
	data := fmt.Sprintf("%s:%d:%x", docID, index, sum[:8])
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
