package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"nexus/internal/domain"
	"nexus/internal/port"
)

// SemanticRetriever answers a query with passages from one vector index,
// restricted to documents the catalog knows about.
type SemanticRetriever struct {
	index    port.VectorIndex
	embedder port.Embedder
	catalog  Catalog
	minScore float64
}

func NewSemanticRetriever(
	index port.VectorIndex,
	embedder port.Embedder,
	catalog Catalog,
	minScore float64,
) *SemanticRetriever {
	return &SemanticRetriever{
		index:    index,
		embedder: embedder,
		catalog:  catalog,
		minScore: minScore,
	}
}

var _ port.Retriever = (*SemanticRetriever)(nil)

// Retrieve returns passages by descending score. Adjacent chunks of one
// document are merged and identical spans are returned once. A scope that
// names no retrievable document yields no passages and no embedding call.
func (r *SemanticRetriever) Retrieve(ctx context.Context, query string, scope []string, topK int) ([]domain.Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, nil
	}

	titles := r.resolveScope(scope)
	if len(titles) == 0 {
		return nil, nil
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding returned empty result")
	}

	ids := make([]string, 0, len(titles))
	for id := range titles {
		ids = append(ids, id)
	}
	matches, err := r.index.Search(ctx, embeddings[0], topK, port.InDocs(ids...))
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	chunks := make([]domain.ScoredChunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, domain.ScoredChunk{
			Chunk: port.MatchChunk(m),
			Score: m.Score,
		})
	}

	passages := MergeAdjacent(chunks)
	for i := range passages {
		passages[i].Title = titles[passages[i].DocID]
	}
	Rank(passages)
	passages = DedupeSpans(passages)

	if r.minScore > 0 {
		passages = filterByThreshold(passages, r.minScore)
	}
	return passages, nil
}

func (r *SemanticRetriever) resolveScope(scope []string) map[string]string {
	titles := make(map[string]string, len(scope))
	for _, id := range scope {
		if _, seen := titles[id]; seen {
			continue
		}
		if title, ok := r.catalog.Title(id); ok {
			titles[id] = title
		}
	}
	return titles
}

// Rank orders passages by score descending, then document id, then position.
func Rank(passages []domain.Passage) {
	sort.SliceStable(passages, func(i, j int) bool {
		a, b := passages[i], passages[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		return a.FirstIndex < b.FirstIndex
	})
}

// DedupeSpans keeps the first passage for each distinct text.
func DedupeSpans(passages []domain.Passage) []domain.Passage {
	seen := make(map[string]bool, len(passages))
	out := passages[:0]
	for _, p := range passages {
		key := strings.TrimSpace(p.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// filterByThreshold removes results below the minimum score threshold.
func filterByThreshold(passages []domain.Passage, minScore float64) []domain.Passage {
	filtered := make([]domain.Passage, 0, len(passages))
	for _, p := range passages {
		if p.Score >= minScore {
			filtered = append(filtered, p)
		}
	}
	return filtered
}
