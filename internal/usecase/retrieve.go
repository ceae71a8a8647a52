package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nexus/internal/domain"
	"nexus/internal/logger"
	"nexus/internal/port"
)

// RetrieveUseCase handles search and retrieval operations.
type RetrieveUseCase struct {
	retriever port.Retriever
	store     port.MetadataStore
	topK      int
	logger    *zap.Logger
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(retriever port.Retriever, store port.MetadataStore, topK int, logger *zap.Logger) *RetrieveUseCase {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrieveUseCase{
		retriever: retriever,
		store:     store,
		topK:      topK,
		logger:    logger,
	}
}

// Retrieve searches scope. topK <= 0 uses the configured default.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, scope []string, topK int) ([]domain.Passage, error) {
	if topK <= 0 {
		topK = u.topK
	}
	start := time.Now()
	passages, err := u.retriever.Retrieve(ctx, query, scope, topK)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx, u.logger).Debug("retrieved",
		zap.Int("scope", len(scope)),
		zap.Int("passages", len(passages)),
		zap.Duration("took", time.Since(start)),
	)
	return passages, nil
}

// RetrieveAll searches every ingested document.
func (u *RetrieveUseCase) RetrieveAll(ctx context.Context, query string, topK int) ([]domain.Passage, error) {
	scope, err := u.AllIngested()
	if err != nil {
		return nil, err
	}
	return u.Retrieve(ctx, query, scope, topK)
}

// AllIngested lists the ids of every retrievable document.
func (u *RetrieveUseCase) AllIngested() ([]string, error) {
	docs, err := u.store.ListDocs()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, d := range docs {
		if d.Status == domain.StatusIngested {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}
