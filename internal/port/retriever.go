package port

import (
	"context"

	"nexus/internal/domain"
)

// Retriever searches indexed content restricted to a scope of document ids.
type Retriever interface {
	Retrieve(ctx context.Context, query string, scope []string, topK int) ([]domain.Passage, error)
}
