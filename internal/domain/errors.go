package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSummaryNotFound    = errors.New("summary not found")
	ErrInvalidChunkConfig = errors.New("invalid chunk configuration")
	ErrEmptyQuery         = errors.New("empty query")
	ErrEmptyDocument      = errors.New("document has no text")
	ErrMissingField       = errors.New("missing required field")
)

// EmbeddingProviderError is returned once the retry policy has given up on a batch.
type EmbeddingProviderError struct {
	Model    string
	Offset   int
	Size     int
	Attempts uint
	Err      error
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s failed for batch [%d:%d] after %d attempt(s): %v",
		e.Model, e.Offset, e.Offset+e.Size, e.Attempts, e.Err)
}

func (e *EmbeddingProviderError) Unwrap() error { return e.Err }

// IndexUnavailableError wraps any vector index failure. It is never retried.
type IndexUnavailableError struct {
	Op  string
	Err error
}

func (e *IndexUnavailableError) Error() string {
	return fmt.Sprintf("vector index unavailable during %s: %v", e.Op, e.Err)
}

func (e *IndexUnavailableError) Unwrap() error { return e.Err }

// GenerationError reports a failed or cancelled model stream. Discarded is the
// number of bytes of partial answer that were dropped.
type GenerationError struct {
	Model     string
	Discarded int
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation with %s failed (%d bytes discarded): %v", e.Model, e.Discarded, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IngestionError is a document-level failure. The document is left Failed with
// no chunks in the index.
type IngestionError struct {
	DocID string
	Stage string
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion of %s failed at %s: %v", e.DocID, e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

func IsIndexUnavailable(err error) bool {
	var target *IndexUnavailableError
	return errors.As(err, &target)
}

func IsEmbeddingProvider(err error) bool {
	var target *EmbeddingProviderError
	return errors.As(err, &target)
}
