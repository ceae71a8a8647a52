package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"nexus/internal/domain"
	"nexus/internal/port"
)

// VectorIndex is a brute-force in-memory VectorIndex. It backs ephemeral
// file sessions and doubles as the search mirror of the bolt index.
type VectorIndex struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]port.VectorRecord
	byDoc     map[string]map[string]struct{}
}

// NewVectorIndex creates an index; dimension 0 accepts any vector length.
func NewVectorIndex(dimension int) *VectorIndex {
	return &VectorIndex{
		dimension: dimension,
		records:   make(map[string]port.VectorRecord),
		byDoc:     make(map[string]map[string]struct{}),
	}
}

var _ port.VectorIndex = (*VectorIndex)(nil)

// Validate checks records without storing them.
func (x *VectorIndex) Validate(records []port.VectorRecord) error {
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record has empty id")
		}
		if x.dimension > 0 && len(r.Vector) != x.dimension {
			return fmt.Errorf("vector dimension mismatch for %s: expected %d, got %d", r.ID, x.dimension, len(r.Vector))
		}
	}
	return nil
}

func (x *VectorIndex) Upsert(_ context.Context, records []port.VectorRecord) error {
	if err := x.Validate(records); err != nil {
		return &domain.IndexUnavailableError{Op: "upsert", Err: err}
	}
	x.Put(records)
	return nil
}

// Put stores already validated records.
func (x *VectorIndex) Put(records []port.VectorRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, r := range records {
		if old, ok := x.records[r.ID]; ok {
			x.unlinkLocked(old)
		}
		x.records[r.ID] = r
		docID := r.Metadata[port.MetaDocID]
		if x.byDoc[docID] == nil {
			x.byDoc[docID] = make(map[string]struct{})
		}
		x.byDoc[docID][r.ID] = struct{}{}
	}
}

func (x *VectorIndex) unlinkLocked(r port.VectorRecord) {
	docID := r.Metadata[port.MetaDocID]
	if ids, ok := x.byDoc[docID]; ok {
		delete(ids, r.ID)
		if len(ids) == 0 {
			delete(x.byDoc, docID)
		}
	}
}

func (x *VectorIndex) Search(_ context.Context, query []float32, topK int, filter port.Filter) ([]port.VectorMatch, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.dimension > 0 && len(query) != x.dimension {
		return nil, &domain.IndexUnavailableError{
			Op:  "search",
			Err: fmt.Errorf("query dimension mismatch: expected %d, got %d", x.dimension, len(query)),
		}
	}
	if topK <= 0 || len(x.records) == 0 {
		return nil, nil
	}

	matches := make([]port.VectorMatch, 0, len(x.records))
	for _, r := range x.candidatesLocked(filter) {
		if !filter.Allows(r.Metadata) {
			continue
		}
		matches = append(matches, port.VectorMatch{
			ID:       r.ID,
			Score:    CosineSimilarity(query, r.Vector),
			Metadata: r.Metadata,
			Text:     r.Text,
		})
	}

	return TopK(matches, topK), nil
}

// candidatesLocked narrows the scan to the filtered documents when possible.
func (x *VectorIndex) candidatesLocked(filter port.Filter) []port.VectorRecord {
	var out []port.VectorRecord
	if filter.DocIDs != nil {
		for docID := range filter.DocIDs {
			for id := range x.byDoc[docID] {
				out = append(out, x.records[id])
			}
		}
		return out
	}
	out = make([]port.VectorRecord, 0, len(x.records))
	for _, r := range x.records {
		out = append(out, r)
	}
	return out
}

func (x *VectorIndex) Delete(_ context.Context, ids []string) error {
	x.Remove(ids)
	return nil
}

// Remove drops records by id.
func (x *VectorIndex) Remove(ids []string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		if r, ok := x.records[id]; ok {
			x.unlinkLocked(r)
			delete(x.records, id)
		}
	}
}

func (x *VectorIndex) IDsByDoc(_ context.Context, docID string) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := make([]string, 0, len(x.byDoc[docID]))
	for id := range x.byDoc[docID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (x *VectorIndex) Count(context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records), nil
}

// TopK orders matches by descending score, ties by ascending id, and keeps k.
func TopK(matches []port.VectorMatch, k int) []port.VectorMatch {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// CosineSimilarity calculates the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
