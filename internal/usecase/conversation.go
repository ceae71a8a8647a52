package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nexus/internal/adapter/memstore"
	"nexus/internal/adapter/retriever"
	"nexus/internal/domain"
	"nexus/internal/logger"
	"nexus/internal/port"
)

// NoContextAnswer is returned by Ask when nothing in scope matches.
const NoContextAnswer = "I couldn't find any information in the documents to answer that."

// ConversationConfig holds the engine's fixed settings.
type ConversationConfig struct {
	TopK           int
	FileSessionTTL time.Duration
	MinScore       float64
}

// ConversationEngine keeps per-session history and streams grounded answers.
type ConversationEngine struct {
	sessions  port.SessionStore[*LiveSession]
	retriever port.Retriever
	embedder  port.Embedder
	chunker   port.Chunker
	llm       port.LLM
	prompt    *PromptBuilder
	cfg       ConversationConfig
	logger    *zap.Logger
	now       func() time.Time
}

// LiveSession is the in-memory state of one session. turn admits one turn at
// a time, for the whole of its generation; mu guards session.
type LiveSession struct {
	turn chan struct{}

	mu      sync.Mutex
	session domain.Session

	// file mode only
	retriever port.Retriever
	docID     string
}

// NewConversationEngine creates a conversation engine. retriever serves
// database sessions; embedder and chunker build the private index of file
// sessions.
func NewConversationEngine(
	sessions port.SessionStore[*LiveSession],
	retriever port.Retriever,
	embedder port.Embedder,
	chunker port.Chunker,
	llm port.LLM,
	prompt *PromptBuilder,
	cfg ConversationConfig,
	logger *zap.Logger,
) *ConversationEngine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationEngine{
		sessions:  sessions,
		retriever: retriever,
		embedder:  embedder,
		chunker:   chunker,
		llm:       llm,
		prompt:    prompt,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func newLiveSession(s domain.Session) *LiveSession {
	return &LiveSession{turn: make(chan struct{}, 1), session: s}
}

// StartDatabaseSession opens a session that retrieves from the shared index,
// restricted to scope. It lives until ended or the process exits.
func (e *ConversationEngine) StartDatabaseSession(scope []string) domain.Session {
	now := e.now()
	seen := make(map[string]bool, len(scope))
	var ids []string
	for _, id := range scope {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	st := newLiveSession(domain.Session{
		ID:        uuid.NewString(),
		Mode:      domain.ModeDatabase,
		Scope:     ids,
		CreatedAt: now,
		UpdatedAt: now,
	})
	e.sessions.Put(st.session.ID, st, 0)

	e.logger.Info("session started", zap.String("session_id", st.session.ID), zap.String("mode", string(domain.ModeDatabase)), zap.Int("scope", len(ids)))
	return st.snapshot()
}

// StartFileSession chunks and embeds text once into an index private to the
// new session. Nothing is written to the shared index. The session expires
// after the configured idle time.
func (e *ConversationEngine) StartFileSession(ctx context.Context, name, text string) (domain.Session, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Session{}, domain.ErrEmptyDocument
	}

	id := uuid.NewString()
	docID := "file:" + id
	if name == "" {
		name = "file"
	}

	chunks, err := e.chunker.Chunk(domain.Document{ID: docID, Title: name}, text)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to chunk file: %w", err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to embed file: %w", err)
	}

	index := memstore.NewVectorIndex(e.embedder.Dimension())
	records := make([]port.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = port.ChunkRecord(c, vectors[i])
	}
	if err := index.Upsert(ctx, records); err != nil {
		return domain.Session{}, err
	}

	now := e.now()
	st := newLiveSession(domain.Session{
		ID:        id,
		Mode:      domain.ModeFile,
		FileName:  name,
		CreatedAt: now,
		UpdatedAt: now,
	})
	st.docID = docID
	st.retriever = retriever.NewSemanticRetriever(index, e.embedder, retriever.StaticCatalog{docID: name}, e.cfg.MinScore)
	e.sessions.Put(id, st, e.cfg.FileSessionTTL)

	logger.FromContext(ctx, e.logger).Info("session started",
		zap.String("session_id", id),
		zap.String("mode", string(domain.ModeFile)),
		zap.String("file", name),
		zap.Int("chunks", len(chunks)),
	)
	return st.snapshot(), nil
}

// Session returns a copy of the session.
func (e *ConversationEngine) Session(id string) (domain.Session, error) {
	st, err := e.state(id)
	if err != nil {
		return domain.Session{}, err
	}
	return st.snapshot(), nil
}

// Clear drops the history and keeps the scope.
func (e *ConversationEngine) Clear(id string) error {
	st, err := e.state(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	st.session.Turns = nil
	st.session.UpdatedAt = e.now()
	st.mu.Unlock()
	return nil
}

// End destroys the session.
func (e *ConversationEngine) End(id string) error {
	if _, err := e.state(id); err != nil {
		return err
	}
	e.sessions.Delete(id)
	return nil
}

func (e *ConversationEngine) state(id string) (*LiveSession, error) {
	st, ok := e.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return st, nil
}

// Send runs one turn: the user turn is recorded, context is retrieved, and
// the answer is streamed. The assistant turn is recorded only if the stream
// completes. Sending the same text again after a failed turn does not record
// the user turn twice. Turns of one session run one at a time.
func (e *ConversationEngine) Send(ctx context.Context, sessionID, userText string) (*Stream, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, domain.ErrEmptyQuery
	}
	st, err := e.state(sessionID)
	if err != nil {
		return nil, err
	}

	select {
	case st.turn <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-st.turn }

	log := logger.FromContext(ctx, e.logger).With(zap.String("session_id", sessionID))

	history, mode, scope := st.beginTurn(userText, e.now())
	if mode == domain.ModeFile {
		// idle expiry counts from the last turn
		e.sessions.Put(sessionID, st, e.cfg.FileSessionTTL)
	}

	var passages []domain.Passage
	switch mode {
	case domain.ModeFile:
		passages, err = st.retriever.Retrieve(ctx, userText, []string{st.docID}, e.cfg.TopK)
	default:
		passages, err = e.retriever.Retrieve(ctx, userText, scope, e.cfg.TopK)
	}
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	prompt, err := e.prompt.Build(passages, history, userText)
	if err != nil {
		release()
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	fragments, err := e.llm.Stream(streamCtx, prompt.Messages)
	if err != nil {
		cancel()
		release()
		return nil, &domain.GenerationError{Model: e.llm.ModelName(), Err: err}
	}

	log.Debug("generating answer",
		zap.Int("passages", len(prompt.Passages)),
		zap.Int("history_turns", prompt.HistoryTurns),
	)

	complete := func(text string) error {
		st.appendAssistant(text, prompt.Passages, e.now())
		log.Info("turn completed", zap.Int("answer_bytes", len(text)))
		return nil
	}
	finish := func() {
		release()
	}
	return newStream(streamCtx, cancel, fragments, e.llm.ModelName(), complete, finish), nil
}

// Ask answers a single question over scope without a session. When nothing
// relevant is found the model is not called.
func (e *ConversationEngine) Ask(ctx context.Context, query string, scope []string) (string, []domain.Passage, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil, domain.ErrEmptyQuery
	}
	passages, err := e.retriever.Retrieve(ctx, query, scope, e.cfg.TopK)
	if err != nil {
		return "", nil, fmt.Errorf("failed to retrieve context: %w", err)
	}
	if len(passages) == 0 {
		return NoContextAnswer, nil, nil
	}

	prompt, err := e.prompt.Build(passages, nil, query)
	if err != nil {
		return "", nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	fragments, err := e.llm.Stream(streamCtx, prompt.Messages)
	if err != nil {
		cancel()
		return "", nil, &domain.GenerationError{Model: e.llm.ModelName(), Err: err}
	}
	answer, err := newStream(streamCtx, cancel, fragments, e.llm.ModelName(), nil, nil).Wait()
	if err != nil {
		return "", nil, err
	}
	return answer, prompt.Passages, nil
}

// SessionCount is the number of live sessions.
func (e *ConversationEngine) SessionCount() int {
	return e.sessions.Count()
}

// beginTurn records the user turn unless it is a replay of the last,
// unanswered one, and returns the history preceding it.
func (st *LiveSession) beginTurn(text string, now time.Time) ([]domain.Turn, domain.SessionMode, []string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	last, ok := st.session.LastTurn()
	if !ok || last.Role != domain.RoleUser || last.Text != text {
		st.session.Turns = append(st.session.Turns, domain.Turn{Role: domain.RoleUser, Text: text, At: now})
	}
	st.session.UpdatedAt = now

	prior := st.session.Turns[:len(st.session.Turns)-1]
	history := make([]domain.Turn, len(prior))
	copy(history, prior)
	scope := append([]string(nil), st.session.Scope...)
	return history, st.session.Mode, scope
}

func (st *LiveSession) appendAssistant(text string, passages []domain.Passage, now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.session.Turns = append(st.session.Turns, domain.Turn{
		Role:    domain.RoleAssistant,
		Text:    text,
		Context: append([]domain.Passage(nil), passages...),
		At:      now,
	})
	st.session.UpdatedAt = now
}

func (st *LiveSession) snapshot() domain.Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.session
	s.Scope = append([]string(nil), st.session.Scope...)
	s.Turns = append([]domain.Turn(nil), st.session.Turns...)
	return s
}
