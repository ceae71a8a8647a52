package retriever

import (
	"nexus/internal/domain"
	"nexus/internal/port"
)

// Catalog decides which documents may be retrieved and how they are cited.
type Catalog interface {
	Title(docID string) (string, bool)
}

// StoreCatalog admits documents whose ingestion completed.
type StoreCatalog struct {
	store port.MetadataStore
}

func NewStoreCatalog(store port.MetadataStore) *StoreCatalog {
	return &StoreCatalog{store: store}
}

func (c *StoreCatalog) Title(docID string) (string, bool) {
	doc, err := c.store.GetDoc(docID)
	if err != nil || doc.Status != domain.StatusIngested {
		return "", false
	}
	return doc.DisplayName(), true
}

// StaticCatalog is a fixed id to title map, used for private file sessions.
type StaticCatalog map[string]string

func (c StaticCatalog) Title(docID string) (string, bool) {
	title, ok := c[docID]
	return title, ok
}
