package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nexus/config"
	"nexus/internal/adapter/analyzer"
	"nexus/internal/adapter/chunker"
	"nexus/internal/adapter/embedding"
	"nexus/internal/adapter/llm"
	"nexus/internal/adapter/memstore"
	"nexus/internal/adapter/pgvector"
	"nexus/internal/adapter/retriever"
	"nexus/internal/adapter/session"
	"nexus/internal/adapter/store"
	"nexus/internal/port"
	"nexus/internal/usecase"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg       *config.Config
	store     port.MetadataStore
	index     port.VectorIndex
	embedder  *embedding.Gateway
	tokenizer *analyzer.Tokenizer
	chunker   *chunker.TokenChunker
	llm       *llm.OpenAIChat
	prompt    *usecase.PromptBuilder

	ingest    *usecase.IngestUseCase
	retrieve  *usecase.RetrieveUseCase
	engine    *usecase.ConversationEngine
	summarize *usecase.SummarizeUseCase

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openApp wires storage, providers and use cases for the workspace dir.
func openApp(ctx context.Context, dir string, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg}

	embedder, err := embedding.NewGatewayFromConfig(cfg.Embedding, logger.Named("embedding"))
	if err != nil {
		return nil, err
	}
	a.embedder = embedder

	if err := a.openStorage(ctx, dir, logger); err != nil {
		a.Close()
		return nil, err
	}

	a.tokenizer = analyzer.NewTokenizer()
	a.chunker, err = chunker.NewTokenChunker(cfg.Chunk.MaxTokens, cfg.Chunk.Overlap, a.tokenizer)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.llm = llm.NewOpenAIChat(cfg.LLM)
	a.prompt = usecase.NewPromptBuilder(a.tokenizer, cfg.Chat.SystemPrompt, cfg.Chat.HistoryBudget, cfg.Chat.ContextBudget)

	semantic := retriever.NewSemanticRetriever(a.index, a.embedder, retriever.NewStoreCatalog(a.store), cfg.Retrieve.MinScoreThreshold)
	a.ingest = usecase.NewIngestUseCase(a.store, a.index, a.embedder, a.chunker, cfg.Ingest.Workers, logger.Named("ingest"))
	a.retrieve = usecase.NewRetrieveUseCase(semantic, a.store, cfg.Retrieve.TopK, logger.Named("retrieve"))
	sessions := session.NewStore[*usecase.LiveSession](time.Minute)
	sessions.OnEvicted(func(id string, _ *usecase.LiveSession) {
		logger.Debug("session closed", zap.String("session_id", id))
	})
	a.engine = usecase.NewConversationEngine(
		sessions,
		semantic, a.embedder, a.chunker, a.llm, a.prompt,
		usecase.ConversationConfig{
			TopK:           cfg.Retrieve.TopK,
			FileSessionTTL: cfg.Chat.FileSessionTTL,
			MinScore:       cfg.Retrieve.MinScoreThreshold,
		},
		logger.Named("chat"),
	)
	a.summarize = usecase.NewSummarizeUseCase(a.store, a.llm, cfg.Summary.MaxChars, logger.Named("summary"))
	return a, nil
}

func (a *app) openStorage(ctx context.Context, dir string, logger *zap.Logger) error {
	dim := a.embedder.Dimension()

	switch a.cfg.Index.Provider {
	case "memory":
		a.store = memstore.NewMemoryStore()
		a.index = memstore.NewVectorIndex(dim)
		return nil

	case "bolt", "pgvector":
		if err := config.EnsureDataDir(dir); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		st, boltIndex, migration, err := store.Open(a.cfg.DBPath(dir), a.cfg, dim)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		a.closers = append(a.closers, func() { st.Close() })
		if migration.NeedsRebuild {
			logger.Warn("index rebuilt", zap.String("reason", migration.Reason))
		}
		a.store = st
		a.index = boltIndex

		if a.cfg.Index.Provider == "pgvector" {
			pg, err := pgvector.New(ctx, a.cfg.Index.DatabaseURL, a.cfg.Index.MaxConns, dim)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, pg.Close)
			a.index = pg
		}
		return nil
	}
	return fmt.Errorf("unsupported index provider: %q", a.cfg.Index.Provider)
}
