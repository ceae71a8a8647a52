package document

import (
	"context"

	"nexus/internal/domain"
	"nexus/internal/usecase"
)

type DocumentUsecase interface {
	Ingest(ctx context.Context, src domain.SourceDocument) (usecase.IngestReport, error)
	Remove(ctx context.Context, docID string) error
	Status(docID string) (domain.Document, error)
	List() ([]domain.Document, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

type SummaryUsecase interface {
	Summarize(ctx context.Context, docID string) (*usecase.Stream, error)
	Summary(docID string) (domain.Summary, error)
}
