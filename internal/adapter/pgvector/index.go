package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"nexus/internal/domain"
	"nexus/internal/port"
)

// Index is a VectorIndex stored in Postgres with the pgvector extension.
// Similarity is 1 - cosine distance (the <=> operator).
type Index struct {
	pool      *pgxpool.Pool
	dimension int
}

// New migrates the schema and opens a pool against databaseURL.
func New(ctx context.Context, databaseURL string, maxConns int32, dimension int) (*Index, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, &domain.IndexUnavailableError{Op: "migrate", Err: err}
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &domain.IndexUnavailableError{Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &domain.IndexUnavailableError{Op: "ping", Err: err}
	}

	return &Index{pool: pool, dimension: dimension}, nil
}

var _ port.VectorIndex = (*Index)(nil)

const upsertSQL = `
INSERT INTO chunk_vectors (id, doc_id, embedding, metadata, text, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE SET
    doc_id = EXCLUDED.doc_id,
    embedding = EXCLUDED.embedding,
    metadata = EXCLUDED.metadata,
    text = EXCLUDED.text,
    updated_at = now()`

// Upsert writes all records in one transaction.
func (x *Index) Upsert(ctx context.Context, records []port.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		if x.dimension > 0 && len(r.Vector) != x.dimension {
			return &domain.IndexUnavailableError{
				Op:  "upsert",
				Err: fmt.Errorf("vector dimension mismatch for %s: expected %d, got %d", r.ID, x.dimension, len(r.Vector)),
			}
		}
		meta := r.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		batch.Queue(upsertSQL, r.ID, meta[port.MetaDocID], pgvector.NewVector(r.Vector), meta, r.Text)
	}

	err := pgx.BeginFunc(ctx, x.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return &domain.IndexUnavailableError{Op: "upsert", Err: err}
	}
	return nil
}

const searchSQL = `
SELECT id, metadata, text, 1 - (embedding <=> $1) AS score
FROM chunk_vectors
WHERE ($2::text[] IS NULL OR doc_id = ANY($2))
  AND metadata @> $3
ORDER BY embedding <=> $1, id
LIMIT $4`

func (x *Index) Search(ctx context.Context, query []float32, topK int, filter port.Filter) ([]port.VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	if x.dimension > 0 && len(query) != x.dimension {
		return nil, &domain.IndexUnavailableError{
			Op:  "search",
			Err: fmt.Errorf("query dimension mismatch: expected %d, got %d", x.dimension, len(query)),
		}
	}

	match := filter.Match
	if match == nil {
		match = map[string]string{}
	}

	rows, err := x.pool.Query(ctx, searchSQL, pgvector.NewVector(query), filter.DocIDList(), match, topK)
	if err != nil {
		return nil, &domain.IndexUnavailableError{Op: "search", Err: err}
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (port.VectorMatch, error) {
		var m port.VectorMatch
		err := row.Scan(&m.ID, &m.Metadata, &m.Text, &m.Score)
		return m, err
	})
	if err != nil {
		return nil, &domain.IndexUnavailableError{Op: "search", Err: err}
	}
	return matches, nil
}

func (x *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := x.pool.Exec(ctx, `DELETE FROM chunk_vectors WHERE id = ANY($1)`, ids); err != nil {
		return &domain.IndexUnavailableError{Op: "delete", Err: err}
	}
	return nil
}

func (x *Index) IDsByDoc(ctx context.Context, docID string) ([]string, error) {
	rows, err := x.pool.Query(ctx, `SELECT id FROM chunk_vectors WHERE doc_id = $1 ORDER BY id`, docID)
	if err != nil {
		return nil, &domain.IndexUnavailableError{Op: "list", Err: err}
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, &domain.IndexUnavailableError{Op: "list", Err: err}
	}
	return ids, nil
}

func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.pool.QueryRow(ctx, `SELECT count(*) FROM chunk_vectors`).Scan(&n); err != nil {
		return 0, &domain.IndexUnavailableError{Op: "count", Err: err}
	}
	return n, nil
}

func (x *Index) Close() {
	x.pool.Close()
}
