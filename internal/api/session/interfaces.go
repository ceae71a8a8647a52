package session

import (
	"context"

	"nexus/internal/domain"
	"nexus/internal/usecase"
)

type ConversationUsecase interface {
	StartDatabaseSession(scope []string) domain.Session
	StartFileSession(ctx context.Context, name, text string) (domain.Session, error)
	Session(id string) (domain.Session, error)
	Send(ctx context.Context, sessionID, userText string) (*usecase.Stream, error)
	Clear(id string) error
	End(id string) error
	Ask(ctx context.Context, query string, scope []string) (string, []domain.Passage, error)
}

var _ ConversationUsecase = (*usecase.ConversationEngine)(nil)
