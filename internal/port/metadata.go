package port

import "nexus/internal/domain"

// MetadataStore persists documents, their ingestion status and summaries.
// Lookups of unknown documents return an error wrapping domain.ErrDocumentNotFound.
type MetadataStore interface {
	PutDoc(doc domain.Document) error

	GetDoc(id string) (domain.Document, error)

	DeleteDoc(id string) error

	ListDocs() ([]domain.Document, error)

	PutSummary(summary domain.Summary) error

	GetSummary(docID string) (domain.Summary, error)
}
