package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"nexus/internal/adapter/llm"
)

var modelsEmbedding bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models served by the configured endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		chat := llm.NewOpenAIChat(GetConfig().LLM)
		ids, err := chat.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		if modelsEmbedding {
			ids = llm.EmbeddingModels(ids)
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsEmbedding, "embedding", false, "only embedding models")
}
