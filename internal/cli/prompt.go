package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	promptQuery string
	promptDocs  []string
	promptJSON  bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the prompt a question would be answered with",
	Long: `Retrieve context for the question and print the messages that would be
sent to the chat model, without calling it. Useful for feeding another model
by hand or for checking what the context budget keeps.

Examples:
  nexus prompt -q "How does leave approval work?"
  nexus prompt -q "What changed in v2?" --doc changelog --json`,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptQuery, "query", "q", "", "question (required)")
	promptCmd.Flags().StringSliceVar(&promptDocs, "doc", nil, "restrict to these document ids (default all)")
	promptCmd.Flags().BoolVar(&promptJSON, "json", false, "output the message list as JSON")
	promptCmd.MarkFlagRequired("query")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, GetRootDir(), GetConfig(), log)
	if err != nil {
		return err
	}
	defer a.Close()

	scope := promptDocs
	if len(scope) == 0 {
		if scope, err = a.retrieve.AllIngested(); err != nil {
			return err
		}
	}
	passages, err := a.retrieve.Retrieve(ctx, promptQuery, scope, 0)
	if err != nil {
		return err
	}

	p, err := a.prompt.Build(passages, nil, promptQuery)
	if err != nil {
		return err
	}
	if promptJSON {
		return writeJSON(p.Messages)
	}

	for _, m := range p.Messages {
		fmt.Printf("--- %s ---\n%s\n\n", m.Role, m.Content)
	}
	fmt.Printf("(%d of %d passages, %d context tokens)\n", len(p.Passages), len(passages), p.ContextTokens)
	return nil
}
