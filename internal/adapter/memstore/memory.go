package memstore

import (
	"fmt"
	"sort"
	"sync"

	"nexus/internal/domain"
	"nexus/internal/port"
)

// MemoryStore is an in-process MetadataStore.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]domain.Document
	summaries map[string]domain.Summary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]domain.Document),
		summaries: make(map[string]domain.Summary),
	}
}

var _ port.MetadataStore = (*MemoryStore)(nil)

func (s *MemoryStore) PutDoc(doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.ChunkIDs = append([]string(nil), doc.ChunkIDs...)
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) GetDoc(id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	doc.ChunkIDs = append([]string(nil), doc.ChunkIDs...)
	return doc, nil
}

func (s *MemoryStore) DeleteDoc(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.summaries, id)
	return nil
}

// ListDocs returns documents ordered by id, without their text.
func (s *MemoryStore) ListDocs() ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		doc.Text = ""
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *MemoryStore) PutSummary(summary domain.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summary.DocID] = summary
	return nil
}

func (s *MemoryStore) GetSummary(docID string) (domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[docID]
	if !ok {
		return domain.Summary{}, fmt.Errorf("%w: %s", domain.ErrSummaryNotFound, docID)
	}
	return summary, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
