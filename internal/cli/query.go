package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nexus/internal/domain"
)

var (
	queryText   string
	queryTopK   int
	queryJSON   bool
	queryAnswer bool
	queryDocs   []string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search ingested documents",
	Long: `Search for the passages most similar to the query. With --answer the
passages are handed to the chat model and its answer is printed instead.

Examples:
  nexus query -q "retention policy"
  nexus query -q "on-call rota" --doc handbook --top-k 10 --json
  nexus query -q "who approves leave?" --answer`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryAnswer, "answer", false, "answer the question with the chat model")
	queryCmd.Flags().StringSliceVar(&queryDocs, "doc", nil, "restrict to these document ids (default all)")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, GetRootDir(), GetConfig(), log)
	if err != nil {
		return err
	}
	defer a.Close()

	scope := queryDocs
	if len(scope) == 0 {
		if scope, err = a.retrieve.AllIngested(); err != nil {
			return err
		}
	}

	if queryAnswer {
		answer, passages, err := a.engine.Ask(ctx, queryText, scope)
		if err != nil {
			return err
		}
		if queryJSON {
			return writeJSON(map[string]interface{}{"answer": answer, "passages": passages})
		}
		fmt.Println(answer)
		printSources(passages)
		return nil
	}

	passages, err := a.retrieve.Retrieve(ctx, queryText, scope, queryTopK)
	if err != nil {
		return err
	}
	if queryJSON {
		if passages == nil {
			passages = []domain.Passage{}
		}
		return writeJSON(passages)
	}

	if len(passages) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	for i, p := range passages {
		fmt.Printf("[%d] %s  chunks %d-%d  score %.4f\n", i+1, p.Title, p.FirstIndex, p.LastIndex, p.Score)
		fmt.Println(indent(p.Text, "    "))
		fmt.Println()
	}
	return nil
}

func writeJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSources(passages []domain.Passage) {
	if len(passages) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for i, p := range passages {
		fmt.Printf("  [%d] %s (chunks %d-%d)\n", i+1, p.Title, p.FirstIndex, p.LastIndex)
	}
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
