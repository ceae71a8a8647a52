package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"nexus/internal/usecase"
)

var summarizeCached bool

var summarizeCmd = &cobra.Command{
	Use:   "summarize <doc-id>",
	Short: "Stream a summary of a document",
	Long: `Summarize a stored document with the chat model. The summary is saved
once it completes; --cached prints the last saved summary instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
	summarizeCmd.Flags().BoolVar(&summarizeCached, "cached", false, "print the saved summary")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), GetRootDir(), GetConfig(), log)
	if err != nil {
		return err
	}
	defer a.Close()

	if summarizeCached {
		summary, err := a.summarize.Summary(args[0])
		if err != nil {
			return err
		}
		fmt.Println(summary.Text)
		return nil
	}

	stream, err := a.summarize.Summarize(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		frag, ok := stream.Next()
		if !ok {
			break
		}
		fmt.Print(frag)
	}
	fmt.Println()

	if err := stream.Err(); err != nil {
		if usecase.IsCancelled(err) {
			return fmt.Errorf("summary cancelled, nothing saved")
		}
		return err
	}
	return nil
}
