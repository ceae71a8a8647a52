package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"nexus/internal/adapter/fs"
	"nexus/internal/usecase"
)

var ingestQuiet bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest documents for retrieval",
	Long: `Ingest every matching text file under the directory. Unchanged files are
skipped, modified files are re-embedded and files that disappeared are removed.

Examples:
  nexus ingest .                 # Ingest current directory
  nexus ingest /path/to/docs     # Ingest specific directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestQuiet, "quiet", false, "no progress bar")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	cfg := GetConfig()
	a, err := openApp(cmd.Context(), GetRootDir(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)

	fmt.Printf("Scanning %s...\n", path)

	var (
		bar       *progressbar.ProgressBar
		barMu     sync.Mutex
		startTime time.Time
		total     int
		processed int
	)

	opts := usecase.DirOptions{
		OnStart: func(n int) {
			if ingestQuiet || n == 0 {
				return
			}
			barMu.Lock()
			defer barMu.Unlock()
			startTime = time.Now()
			total = n
			bar = progressbar.NewOptions(n,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		},
		OnDone: func(usecase.IngestReport) {
			barMu.Lock()
			defer barMu.Unlock()
			if bar == nil {
				return
			}
			processed++
			bar.Set(processed)

			elapsed := time.Since(startTime)
			rate := float64(processed) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-processed)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] ETA: %s", formatDuration(eta)))
			}
		},
	}

	result, err := a.ingest.IngestDir(cmd.Context(), path, walker, fs.Reader{}, opts)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Ingested:   %d\n", result.Ingested)
	fmt.Printf("  Unchanged:  %d\n", result.Unchanged)
	fmt.Printf("  Removed:    %d\n", result.Removed)
	fmt.Printf("  Failed:     %d\n", result.Failed)

	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d document(s) failed to ingest", result.Failed)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
