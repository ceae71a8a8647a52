package port

import (
	"context"
	"strconv"

	"nexus/internal/domain"
)

// Metadata keys written for every chunk vector.
const (
	MetaDocID  = "doc_id"
	MetaIndex  = "index"
	MetaStart  = "start"
	MetaEnd    = "end"
	MetaTokens = "tokens"
)

// VectorIndex stores (id, vector, metadata, text) tuples and answers filtered
// nearest-neighbour queries. All failures are *domain.IndexUnavailableError.
type VectorIndex interface {
	// Upsert adds or overwrites records by ID.
	Upsert(ctx context.Context, records []VectorRecord) error

	// Search returns at most topK matches passing filter, by descending cosine
	// similarity, ties broken by smallest ID.
	Search(ctx context.Context, query []float32, topK int, filter Filter) ([]VectorMatch, error)

	// Delete removes records by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// IDsByDoc lists the IDs of records whose doc_id metadata equals docID, sorted.
	IDsByDoc(ctx context.Context, docID string) ([]string, error)

	// Count returns the number of records.
	Count(ctx context.Context) (int, error)
}

type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
	Text     string
}

type VectorMatch struct {
	ID       string
	Score    float64 // cosine similarity, higher is better
	Metadata map[string]string
	Text     string
}

// Filter is a metadata predicate. A nil DocIDs set does not restrict by
// document; a non-nil empty set matches nothing.
type Filter struct {
	DocIDs map[string]struct{}
	Match  map[string]string
}

// InDocs restricts a search to the given documents.
func InDocs(ids ...string) Filter {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Filter{DocIDs: set}
}

func (f Filter) Allows(meta map[string]string) bool {
	if f.DocIDs != nil {
		if _, ok := f.DocIDs[meta[MetaDocID]]; !ok {
			return false
		}
	}
	for k, v := range f.Match {
		if meta[k] != v {
			return false
		}
	}
	return true
}

// DocIDList returns the document restriction as a slice, or nil when unrestricted.
func (f Filter) DocIDList() []string {
	if f.DocIDs == nil {
		return nil
	}
	ids := make([]string, 0, len(f.DocIDs))
	for id := range f.DocIDs {
		ids = append(ids, id)
	}
	return ids
}

// MetaInt reads an integer metadata value, returning 0 when absent or malformed.
func MetaInt(meta map[string]string, key string) int {
	n, _ := strconv.Atoi(meta[key])
	return n
}

// ChunkRecord is the index record for one embedded chunk.
func ChunkRecord(c domain.Chunk, vector []float32) VectorRecord {
	return VectorRecord{
		ID:     c.ID,
		Vector: vector,
		Metadata: map[string]string{
			MetaDocID:  c.DocID,
			MetaIndex:  strconv.Itoa(c.Index),
			MetaStart:  strconv.Itoa(c.Start),
			MetaEnd:    strconv.Itoa(c.End),
			MetaTokens: strconv.Itoa(c.TokenCount),
		},
		Text: c.Text,
	}
}

// MatchChunk rebuilds the chunk a search match was indexed from.
func MatchChunk(m VectorMatch) domain.Chunk {
	return domain.Chunk{
		ID:         m.ID,
		DocID:      m.Metadata[MetaDocID],
		Index:      MetaInt(m.Metadata, MetaIndex),
		Start:      MetaInt(m.Metadata, MetaStart),
		End:        MetaInt(m.Metadata, MetaEnd),
		TokenCount: MetaInt(m.Metadata, MetaTokens),
		Text:       m.Text,
	}
}
