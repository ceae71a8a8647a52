package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"nexus/config"
	"nexus/internal/adapter/embedding"
	"nexus/internal/adapter/retriever"
	"nexus/internal/adapter/store"
	"nexus/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Path to the workspace")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	relevant := flag.String("relevant", "", "Comma-separated ids of the documents that should match")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir ./docs -q \"query\" [-relevant id1,id2]")
		fmt.Println("\nReports:")
		fmt.Println("  1. Embedding infrastructure (model connection, vector index)")
		fmt.Println("  2. Semantic similarity (query vs passages)")
		fmt.Println("  3. Ranking quality against the relevant documents, if given")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	embedder, err := embedding.NewGatewayFromConfig(cfg.Embedding, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedder not available: %v\n", err)
		os.Exit(1)
	}

	st, index, _, err := store.Open(cfg.DBPath(*dir), cfg, embedder.Dimension())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	count, _ := index.Count(ctx)
	if count == 0 {
		fmt.Fprintln(os.Stderr, "No embeddings - run 'nexus ingest' first")
		os.Exit(1)
	}

	fmt.Println("SEMANTIC SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Vectors indexed: %d\n", count)
	fmt.Printf("Model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", embedder.Dimension())
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	semantic := retriever.NewSemanticRetriever(index, embedder, retriever.NewStoreCatalog(st), 0)
	uc := usecase.NewRetrieveUseCase(semantic, st, *topK, nil)
	passages, err := uc.RetrieveAll(ctx, *query, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}
	if len(passages) == 0 {
		fmt.Println("No matches.")
		return
	}

	fmt.Printf("Top %d semantic matches:\n\n", len(passages))

	totalScore := 0.0
	retrieved := make([]string, 0, len(passages))
	for i, p := range passages {
		preview := p.Text
		if len(preview) > 150 {
			preview = preview[:150] + "..."
		}
		preview = strings.ReplaceAll(preview, "\n", " ")

		totalScore += p.Score
		retrieved = append(retrieved, p.DocID)

		rating := "LOW"
		if p.Score > 0.7 {
			rating = "HIGH"
		} else if p.Score > 0.5 {
			rating = "GOOD"
		} else if p.Score > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s #%d-%d\n", i+1, rating, p.Score, shortPath(p.Title), p.FirstIndex, p.LastIndex)
		fmt.Printf("   %s\n\n", preview)
	}

	avgScore := totalScore / float64(len(passages))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", passages[0].Score)

	if *relevant != "" {
		want := strings.Split(*relevant, ",")
		fmt.Printf("  Precision@%d:       %.3f\n", len(retrieved), retriever.PrecisionAtK(retrieved, want))
		fmt.Printf("  Recall@%d:          %.3f\n", len(retrieved), retriever.RecallAtK(retrieved, want))
		fmt.Printf("  MRR:                %.3f\n", retriever.ReciprocalRank(retrieved, want))
		fmt.Printf("  NDCG:               %.3f\n", retriever.NDCG(gains(retrieved, want), idealGains(len(retrieved), len(want))))
	}

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - semantic search working well")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need better embeddings or re-ingestion")
	}
}

func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		return parts[len(parts)-1]
	}
	return path
}

// gains scores each retrieved position 1 if its document is relevant.
func gains(retrieved, relevant []string) []float64 {
	set := make(map[string]bool, len(relevant))
	for _, id := range relevant {
		set[id] = true
	}
	out := make([]float64, len(retrieved))
	for i, id := range retrieved {
		if set[id] {
			out[i] = 1
		}
	}
	return out
}

func idealGains(n, relevant int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n && i < relevant; i++ {
		out[i] = 1
	}
	return out
}
