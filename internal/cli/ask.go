package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	askQuestion    string
	askContextSize int
	askJSON        bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieve the chunks most similar to a question and have the configured
generator answer from them.

Examples:
  ragvault ask -q "How long are backups kept?"
  ragvault ask -q "Who owns the store?" --context-size 5`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askQuestion, "query", "q", "", "question to answer (required)")
	askCmd.Flags().IntVarP(&askContextSize, "context-size", "n", 0, "number of chunks given to the generator (1-10, default 3)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(GetConfig(), Logger())
	if err != nil {
		return err
	}

	answer, err := a.search.Ask(cmd.Context(), askQuestion, askContextSize)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(answer.Answer)
	if len(answer.Context) > 0 {
		fmt.Printf("\nSources:\n")
		for _, r := range answer.Context {
			fmt.Printf("  - %s #%d (score: %.2f)\n", r.Metadata.DocumentTitle, r.Metadata.ChunkIndex, r.Score)
		}
	}
	return nil
}
