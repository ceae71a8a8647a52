package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nexus/internal/adapter/embedding"
	"nexus/internal/adapter/memstore"
	"nexus/internal/port"
)

var errProvider = errors.New("provider unavailable")

// fakeEmbedder produces hash embeddings and can be told to fail or block.
type fakeEmbedder struct {
	inner  *embedding.HashEmbedder
	calls  atomic.Int64
	poison string // any batch containing this substring fails

	mu      sync.Mutex
	fail    bool
	entered chan struct{}
	release chan struct{}
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{inner: embedding.NewHashEmbedder(256)}
}

func (e *fakeEmbedder) setFail(fail bool) {
	e.mu.Lock()
	e.fail = fail
	e.mu.Unlock()
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)

	e.mu.Lock()
	fail, entered, release := e.fail, e.entered, e.release
	e.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errProvider
	}
	if e.poison != "" {
		for _, t := range texts {
			if strings.Contains(t, e.poison) {
				return nil, errProvider
			}
		}
	}
	return e.inner.EmbedBatch(ctx, texts)
}

func (e *fakeEmbedder) Dimension() int    { return e.inner.Dimension() }
func (e *fakeEmbedder) ModelName() string { return "fake" }

// recordingIndex wraps the memory index, logs every write and flags any
// two writes that overlap in time.
type recordingIndex struct {
	*memstore.VectorIndex

	mu       sync.Mutex
	ops      []string
	inFlight int
	overlap  atomic.Bool

	upserts atomic.Int64
	deletes atomic.Int64

	writeDelay time.Duration
	failUpsert atomic.Bool // write the first record, then fail
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{VectorIndex: memstore.NewVectorIndex(256)}
}

func (x *recordingIndex) enter(op string) {
	x.mu.Lock()
	x.ops = append(x.ops, op)
	x.inFlight++
	if x.inFlight > 1 {
		x.overlap.Store(true)
	}
	x.mu.Unlock()
}

func (x *recordingIndex) leave() {
	x.mu.Lock()
	x.inFlight--
	x.mu.Unlock()
}

func (x *recordingIndex) Upsert(ctx context.Context, records []port.VectorRecord) error {
	x.upserts.Add(1)
	x.enter("upsert")
	defer x.leave()
	time.Sleep(x.writeDelay)

	if x.failUpsert.Load() {
		_ = x.VectorIndex.Upsert(ctx, records[:1])
		return errors.New("index write failed")
	}
	return x.VectorIndex.Upsert(ctx, records)
}

func (x *recordingIndex) Delete(ctx context.Context, ids []string) error {
	x.deletes.Add(1)
	x.enter("delete")
	defer x.leave()
	time.Sleep(x.writeDelay)
	return x.VectorIndex.Delete(ctx, ids)
}

func (x *recordingIndex) writes() int64 {
	return x.upserts.Load() + x.deletes.Load()
}

func (x *recordingIndex) opLog() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string(nil), x.ops...)
}
