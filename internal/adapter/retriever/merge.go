package retriever

import (
	"sort"

	"nexus/internal/domain"
)

// MergeAdjacent groups chunks by document and joins runs whose Index values
// are consecutive. The merged text covers the union of the byte spans, so
// overlap between neighbours appears once. A merged passage scores as its
// best chunk.
func MergeAdjacent(chunks []domain.ScoredChunk) []domain.Passage {
	if len(chunks) == 0 {
		return nil
	}

	sorted := make([]domain.ScoredChunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Chunk, sorted[j].Chunk
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		return a.Index < b.Index
	})

	var passages []domain.Passage
	for _, sc := range sorted {
		c := sc.Chunk
		if n := len(passages); n > 0 {
			last := &passages[n-1]
			if last.DocID == c.DocID && c.Index == last.LastIndex+1 {
				extend(last, sc)
				continue
			}
			if last.DocID == c.DocID && c.Index == last.LastIndex {
				// same chunk twice
				continue
			}
		}
		passages = append(passages, domain.Passage{
			DocID:      c.DocID,
			FirstIndex: c.Index,
			LastIndex:  c.Index,
			Start:      c.Start,
			End:        c.End,
			Text:       c.Text,
			Score:      sc.Score,
			ChunkIDs:   []string{c.ID},
		})
	}
	return passages
}

func extend(p *domain.Passage, sc domain.ScoredChunk) {
	c := sc.Chunk
	switch {
	case c.End <= p.End:
		// fully covered by what we already have
	case c.Start < p.End && p.End-c.Start <= len(c.Text):
		p.Text += c.Text[p.End-c.Start:]
	default:
		p.Text += " " + c.Text
	}
	if c.End > p.End {
		p.End = c.End
	}
	p.LastIndex = c.Index
	p.ChunkIDs = append(p.ChunkIDs, c.ID)
	if sc.Score > p.Score {
		p.Score = sc.Score
	}
}
