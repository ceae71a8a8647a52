package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"nexus/internal/adapter/memstore"
	"nexus/internal/domain"
	"nexus/internal/port"
)

var (
	bucketVectors = []byte("vectors")
)

// BoltVectorIndex implements VectorIndex using BoltDB for persistence.
// Every record is mirrored in memory and searched brute force; writes hit
// bolt first and the mirror only after the transaction commits.
type BoltVectorIndex struct {
	db        *bbolt.DB
	dimension int
	mirror    *memstore.VectorIndex
}

type storedVector struct {
	Vector   []float32         `json:"v"`
	Metadata map[string]string `json:"m,omitempty"`
	Text     string            `json:"t"`
}

// NewBoltVectorIndex creates a BoltDB-backed vector index.
func NewBoltVectorIndex(db *bbolt.DB, dimension int) (*BoltVectorIndex, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vectors bucket: %w", err)
	}

	index := &BoltVectorIndex{
		db:        db,
		dimension: dimension,
		mirror:    memstore.NewVectorIndex(dimension),
	}

	if err := index.loadVectors(); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	return index, nil
}

var _ port.VectorIndex = (*BoltVectorIndex)(nil)

// loadVectors loads all vectors from BoltDB into memory.
func (x *BoltVectorIndex) loadVectors() error {
	var records []port.VectorRecord
	err := x.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("corrupted vector %s: %w", k, err)
			}
			if x.dimension > 0 && len(stored.Vector) != x.dimension {
				return fmt.Errorf("stored vector %s has dimension %d, index expects %d", k, len(stored.Vector), x.dimension)
			}
			records = append(records, port.VectorRecord{
				ID:       string(k),
				Vector:   stored.Vector,
				Metadata: stored.Metadata,
				Text:     stored.Text,
			})
			return nil
		})
	})
	if err != nil {
		return err
	}
	x.mirror.Put(records)
	return nil
}

// Upsert adds or overwrites records.
func (x *BoltVectorIndex) Upsert(_ context.Context, records []port.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := x.mirror.Validate(records); err != nil {
		return &domain.IndexUnavailableError{Op: "upsert", Err: err}
	}

	err := x.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return errors.New("vectors bucket not found")
		}

		for _, r := range records {
			data, err := json.Marshal(storedVector{
				Vector:   r.Vector,
				Metadata: r.Metadata,
				Text:     r.Text,
			})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(r.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &domain.IndexUnavailableError{Op: "upsert", Err: err}
	}

	x.mirror.Put(records)
	return nil
}

// Search finds the topK nearest records passing filter using cosine similarity.
func (x *BoltVectorIndex) Search(ctx context.Context, query []float32, topK int, filter port.Filter) ([]port.VectorMatch, error) {
	if err := x.ping(); err != nil {
		return nil, &domain.IndexUnavailableError{Op: "search", Err: err}
	}
	return x.mirror.Search(ctx, query, topK, filter)
}

// Delete removes records by ID.
func (x *BoltVectorIndex) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := x.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &domain.IndexUnavailableError{Op: "delete", Err: err}
	}

	x.mirror.Remove(ids)
	return nil
}

func (x *BoltVectorIndex) IDsByDoc(ctx context.Context, docID string) ([]string, error) {
	if err := x.ping(); err != nil {
		return nil, &domain.IndexUnavailableError{Op: "list", Err: err}
	}
	return x.mirror.IDsByDoc(ctx, docID)
}

// Count returns the number of vectors in the index.
func (x *BoltVectorIndex) Count(ctx context.Context) (int, error) {
	if err := x.ping(); err != nil {
		return 0, &domain.IndexUnavailableError{Op: "count", Err: err}
	}
	return x.mirror.Count(ctx)
}

// ping fails once the underlying database has been closed.
func (x *BoltVectorIndex) ping() error {
	return x.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketVectors) == nil {
			return errors.New("vectors bucket not found")
		}
		return nil
	})
}
