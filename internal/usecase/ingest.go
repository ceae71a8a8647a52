package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"nexus/internal/domain"
	"nexus/internal/logger"
	"nexus/internal/port"
)

// Outcome is what one ingestion request did.
type Outcome string

const (
	OutcomeIngested  Outcome = "ingested"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// IngestReport describes the result for one document.
type IngestReport struct {
	DocID   string  `json:"doc_id"`
	Outcome Outcome `json:"outcome"`
	Chunks  int     `json:"chunks"`
	Error   string  `json:"error,omitempty"`
	Err     error   `json:"-"`
}

// IngestUseCase moves documents through chunk, embed and upsert, keeping the
// index equal to the last successful ingestion of every document.
type IngestUseCase struct {
	store    port.MetadataStore
	index    port.VectorIndex
	embedder port.Embedder
	chunker  port.Chunker
	workers  int
	logger   *zap.Logger

	locks  *keyedMutex
	flight singleflight.Group
	now    func() time.Time

	flightMu  sync.Mutex
	flights   map[string]*ingestFlight
	flightSeq uint64
}

// ingestFlight is one shared ingestion run. It keeps going while any caller
// still waits on it and is cancelled when the last one gives up.
type ingestFlight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewIngestUseCase creates a new ingest use case.
func NewIngestUseCase(
	store port.MetadataStore,
	index port.VectorIndex,
	embedder port.Embedder,
	chunker port.Chunker,
	workers int,
	logger *zap.Logger,
) *IngestUseCase {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestUseCase{
		store:    store,
		index:    index,
		embedder: embedder,
		chunker:  chunker,
		workers:  workers,
		logger:   logger,
		locks:    newKeyedMutex(),
		now:      time.Now,
		flights:  make(map[string]*ingestFlight),
	}
}

// ContentHash is the idempotency key of a document's text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Ingest brings one document up to date. A document whose hash is unchanged
// and already Ingested costs no embedding call and no index write. A
// concurrent request for the same id and content joins the run in flight.
func (u *IngestUseCase) Ingest(ctx context.Context, src domain.SourceDocument) (IngestReport, error) {
	if src.ID == "" {
		return IngestReport{Outcome: OutcomeFailed}, errors.New("document id is required")
	}
	hash := src.ContentHash
	if hash == "" {
		hash = ContentHash(src.Text)
	}

	key := src.ID + ":" + hash
	f := u.joinFlight(ctx, key)
	defer u.leaveFlight(key, f)

	ch := u.flight.DoChan(f.key, func() (interface{}, error) {
		return u.ingestLocked(f.ctx, src, hash)
	})
	select {
	case res := <-ch:
		if res.Shared {
			logger.FromContext(ctx, u.logger).Debug("joined in-flight ingestion", zap.String("doc_id", src.ID))
		}
		return res.Val.(IngestReport), res.Err
	case <-ctx.Done():
		return u.failedReport(src.ID, ctx.Err()), ctx.Err()
	}
}

// joinFlight returns the run in flight for key, starting a new one when
// there is none. The run's context carries ctx's values but not its
// cancellation.
func (u *IngestUseCase) joinFlight(ctx context.Context, key string) *ingestFlight {
	u.flightMu.Lock()
	defer u.flightMu.Unlock()

	f, ok := u.flights[key]
	if !ok {
		u.flightSeq++
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &ingestFlight{
			key:    fmt.Sprintf("%s#%d", key, u.flightSeq),
			ctx:    runCtx,
			cancel: cancel,
		}
		u.flights[key] = f
	}
	f.waiters++
	return f
}

func (u *IngestUseCase) leaveFlight(key string, f *ingestFlight) {
	u.flightMu.Lock()
	defer u.flightMu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	if u.flights[key] == f {
		delete(u.flights, key)
	}
	f.cancel()
}

func (u *IngestUseCase) ingestLocked(ctx context.Context, src domain.SourceDocument, hash string) (IngestReport, error) {
	unlock := u.locks.Lock(src.ID)
	defer unlock()

	log := logger.FromContext(ctx, u.logger).With(zap.String("doc_id", src.ID))

	existing, err := u.store.GetDoc(src.ID)
	switch {
	case err == nil:
		if existing.ContentHash == hash && existing.Status == domain.StatusIngested {
			log.Debug("document unchanged, skipping")
			return IngestReport{DocID: src.ID, Outcome: OutcomeUnchanged, Chunks: len(existing.ChunkIDs)}, nil
		}
	case errors.Is(err, domain.ErrDocumentNotFound):
		existing = domain.Document{}
	default:
		return u.failedReport(src.ID, err), fmt.Errorf("failed to read document %s: %w", src.ID, err)
	}

	doc := domain.Document{
		ID:          src.ID,
		Source:      src.Source,
		Title:       src.Title,
		Path:        src.Path,
		Text:        src.Text,
		ContentHash: hash,
		Status:      domain.StatusIngesting,
		ChunkIDs:    existing.ChunkIDs,
		UpdatedAt:   u.now(),
	}
	if err := u.store.PutDoc(doc); err != nil {
		return u.failedReport(src.ID, err), fmt.Errorf("failed to mark %s ingesting: %w", src.ID, err)
	}

	chunkIDs, stage, err := u.run(ctx, doc)
	if err != nil {
		return u.fail(log, doc, stage, err)
	}

	doc.Status = domain.StatusIngested
	doc.ChunkIDs = chunkIDs
	doc.LastError = ""
	doc.UpdatedAt = u.now()
	if err := u.store.PutDoc(doc); err != nil {
		// The index holds the new chunks; without the record they are
		// unreachable, so take them out again.
		u.rollback(ctx, log, chunkIDs)
		return u.fail(log, doc, "record", err)
	}

	log.Info("document ingested", zap.Int("chunks", len(chunkIDs)))
	return IngestReport{DocID: src.ID, Outcome: OutcomeIngested, Chunks: len(chunkIDs)}, nil
}

// fail marks doc Failed with no chunks. The index must already be clean.
func (u *IngestUseCase) fail(log *zap.Logger, doc domain.Document, stage string, err error) (IngestReport, error) {
	ingErr := &domain.IngestionError{DocID: doc.ID, Stage: stage, Err: err}
	doc.Status = domain.StatusFailed
	doc.ChunkIDs = nil
	doc.LastError = ingErr.Error()
	doc.UpdatedAt = u.now()
	if perr := u.store.PutDoc(doc); perr != nil {
		log.Error("failed to record ingestion failure", zap.Error(perr))
	}
	log.Warn("ingestion failed", zap.String("stage", stage), zap.Error(err))
	return u.failedReport(doc.ID, ingErr), ingErr
}

// run replaces the document's chunk set. Stale chunks are deleted before
// anything new is written; on failure everything written by this run is
// deleted again. The returned stage names the failing step.
func (u *IngestUseCase) run(ctx context.Context, doc domain.Document) ([]string, string, error) {
	stale, err := u.indexedIDs(ctx, doc)
	if err != nil {
		return nil, "delete", err
	}
	if len(stale) > 0 {
		if err := u.index.Delete(ctx, stale); err != nil {
			return nil, "delete", err
		}
	}

	chunks, err := u.chunker.Chunk(doc, doc.Text)
	if err != nil {
		return nil, "chunk", err
	}
	if len(chunks) == 0 {
		return nil, "", nil
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		ids[i] = c.ID
	}

	vectors, err := u.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, "embed", err
	}
	if len(vectors) != len(chunks) {
		return nil, "embed", fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]port.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = port.ChunkRecord(c, vectors[i])
	}
	if err := u.index.Upsert(ctx, records); err != nil {
		u.rollback(ctx, logger.FromContext(ctx, u.logger), ids)
		return nil, "upsert", err
	}

	return ids, "", nil
}

// indexedIDs is every id the index may hold for doc: the recorded chunk set
// plus whatever an interrupted earlier run left behind.
func (u *IngestUseCase) indexedIDs(ctx context.Context, doc domain.Document) ([]string, error) {
	found, err := u.index.IDsByDoc(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(found)+len(doc.ChunkIDs))
	for _, id := range found {
		set[id] = struct{}{}
	}
	for _, id := range doc.ChunkIDs {
		set[id] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// rollback deletes ids written by a failed run. It runs even when ctx is
// already cancelled.
func (u *IngestUseCase) rollback(ctx context.Context, log *zap.Logger, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := u.index.Delete(context.WithoutCancel(ctx), ids); err != nil {
		log.Error("rollback failed, index may hold partial chunks", zap.Int("chunks", len(ids)), zap.Error(err))
	}
}

func (u *IngestUseCase) failedReport(docID string, err error) IngestReport {
	return IngestReport{DocID: docID, Outcome: OutcomeFailed, Error: err.Error(), Err: err}
}

// IngestBatch ingests documents concurrently, at most workers at a time. One
// failure never stops the others. onDone, if set, is called once per
// document from the worker goroutine.
func (u *IngestUseCase) IngestBatch(ctx context.Context, docs []domain.SourceDocument, onDone func(IngestReport)) []IngestReport {
	reports := make([]IngestReport, len(docs))

	var g errgroup.Group
	g.SetLimit(u.workers)
	for i := range docs {
		g.Go(func() error {
			report, err := u.Ingest(ctx, docs[i])
			if err != nil && report.Err == nil {
				report.Err = err
				report.Error = err.Error()
			}
			if report.DocID == "" {
				report.DocID = docs[i].ID
			}
			reports[i] = report
			if onDone != nil {
				onDone(report)
			}
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

// Remove deletes a document's chunks from the index and its record.
func (u *IngestUseCase) Remove(ctx context.Context, docID string) error {
	unlock := u.locks.Lock(docID)
	defer unlock()

	doc, err := u.store.GetDoc(docID)
	if err != nil {
		return err
	}
	ids, err := u.indexedIDs(ctx, doc)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		if err := u.index.Delete(ctx, ids); err != nil {
			return err
		}
	}
	if err := u.store.DeleteDoc(docID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}

	logger.FromContext(ctx, u.logger).Info("document removed", zap.String("doc_id", docID), zap.Int("chunks", len(ids)))
	return nil
}

// Status returns the stored record for docID, including its text.
func (u *IngestUseCase) Status(docID string) (domain.Document, error) {
	return u.store.GetDoc(docID)
}

// List returns all documents without their text.
func (u *IngestUseCase) List() ([]domain.Document, error) {
	return u.store.ListDocs()
}

// Stats summarises documents and the shared index.
func (u *IngestUseCase) Stats(ctx context.Context) (domain.Stats, error) {
	docs, err := u.store.ListDocs()
	if err != nil {
		return domain.Stats{}, err
	}
	stats := domain.Stats{
		TotalDocs: len(docs),
		ByStatus:  make(map[domain.IngestionStatus]int),
	}
	for _, d := range docs {
		stats.TotalChunks += len(d.ChunkIDs)
		stats.ByStatus[d.Status]++
	}
	vectors, err := u.index.Count(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	stats.TotalVectors = vectors
	return stats, nil
}
