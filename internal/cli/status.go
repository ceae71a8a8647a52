package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"nexus/internal/domain"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [doc-id]",
	Short: "Show ingested documents and index statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), GetRootDir(), GetConfig(), log)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		doc, err := a.ingest.Status(args[0])
		if err != nil {
			return err
		}
		if statusJSON {
			return writeJSON(doc)
		}
		fmt.Printf("ID:       %s\n", doc.ID)
		fmt.Printf("Name:     %s\n", doc.DisplayName())
		fmt.Printf("Status:   %s\n", doc.Status)
		fmt.Printf("Chunks:   %d\n", len(doc.ChunkIDs))
		fmt.Printf("Hash:     %s\n", doc.ContentHash)
		fmt.Printf("Updated:  %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
		if doc.LastError != "" {
			fmt.Printf("Error:    %s\n", doc.LastError)
		}
		return nil
	}

	stats, err := a.ingest.Stats(cmd.Context())
	if err != nil {
		return err
	}
	docs, err := a.ingest.List()
	if err != nil {
		return err
	}
	if statusJSON {
		return writeJSON(map[string]interface{}{"stats": stats, "documents": docs})
	}

	fmt.Printf("Documents: %d  Chunks: %d  Vectors: %d (%s index)\n\n",
		stats.TotalDocs, stats.TotalChunks, stats.TotalVectors, GetConfig().Index.Provider)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCHUNKS\tNAME")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.ID, d.Status, len(d.ChunkIDs), d.DisplayName())
	}
	w.Flush()

	if n := stats.ByStatus[domain.StatusFailed]; n > 0 {
		fmt.Printf("\n%d document(s) failed; run 'nexus status <id>' for details\n", n)
	}
	return nil
}
