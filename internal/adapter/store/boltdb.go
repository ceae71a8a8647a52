package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"nexus/internal/domain"
	"nexus/internal/port"
)

var (
	bucketDocs      = []byte("docs")
	bucketTexts     = []byte("texts")
	bucketSummaries = []byte("summaries")
	bucketMeta      = []byte("meta")
)

// BoltStore is the embedded MetadataStore. Document text lives in its own
// bucket so listings never decode it.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketDocs, bucketTexts, bucketSummaries, bucketMeta}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

var _ port.MetadataStore = (*BoltStore)(nil)

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type docMeta struct {
	Source      domain.SourceType      `json:"source"`
	Title       string                 `json:"title,omitempty"`
	Path        string                 `json:"path,omitempty"`
	ContentHash string                 `json:"content_hash"`
	Status      domain.IngestionStatus `json:"status"`
	ChunkIDs    []string               `json:"chunk_ids,omitempty"`
	LastError   string                 `json:"last_error,omitempty"`
	UpdatedAt   int64                  `json:"updated_at"`
}

func (m docMeta) toDocument(id string) domain.Document {
	return domain.Document{
		ID:          id,
		Source:      m.Source,
		Title:       m.Title,
		Path:        m.Path,
		ContentHash: m.ContentHash,
		Status:      m.Status,
		ChunkIDs:    m.ChunkIDs,
		LastError:   m.LastError,
		UpdatedAt:   time.Unix(0, m.UpdatedAt),
	}
}

// PutDoc writes the document together with its text.
func (s *BoltStore) PutDoc(doc domain.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta := docMeta{
			Source:      doc.Source,
			Title:       doc.Title,
			Path:        doc.Path,
			ContentHash: doc.ContentHash,
			Status:      doc.Status,
			ChunkIDs:    doc.ChunkIDs,
			LastError:   doc.LastError,
			UpdatedAt:   doc.UpdatedAt.UnixNano(),
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketDocs).Put([]byte(doc.ID), data); err != nil {
			return err
		}
		if doc.Text == "" {
			return tx.Bucket(bucketTexts).Delete([]byte(doc.ID))
		}
		return tx.Bucket(bucketTexts).Put([]byte(doc.ID), []byte(doc.Text))
	})
}

func (s *BoltStore) GetDoc(id string) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		doc = meta.toDocument(id)
		doc.Text = string(tx.Bucket(bucketTexts).Get([]byte(id)))
		return nil
	})
	return doc, err
}

func (s *BoltStore) DeleteDoc(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketDocs, bucketTexts, bucketSummaries} {
			if err := tx.Bucket(name).Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListDocs returns documents ordered by id, without their text.
func (s *BoltStore) ListDocs() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocs)
		return b.ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			docs = append(docs, meta.toDocument(string(k)))
			return nil
		})
	})
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, err
}

func (s *BoltStore) PutSummary(summary domain.Summary) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSummaries).Put([]byte(summary.DocID), data)
	})
}

func (s *BoltStore) GetSummary(docID string) (domain.Summary, error) {
	var summary domain.Summary
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSummaries).Get([]byte(docID))
		if data == nil {
			return fmt.Errorf("%w: %s", domain.ErrSummaryNotFound, docID)
		}
		return json.Unmarshal(data, &summary)
	})
	return summary, err
}
