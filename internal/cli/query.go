package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"ragvault/internal/domain"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search the vector store",
	Long: `Search for the chunks most similar to a query by inner product.

Examples:
  ragvault query -q "retention policy"
  ragvault query -q "backup schedule" --top-k 10 --json`,
	RunE: runQuery,
}

var documentsJSON bool

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List the documents in the vector store",
	RunE:  runDocuments,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")

	rootCmd.AddCommand(documentsCmd)
	documentsCmd.Flags().BoolVar(&documentsJSON, "json", false, "output as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openApp(GetConfig(), Logger())
	if err != nil {
		return err
	}
	if a.store.Count() == 0 {
		return fmt.Errorf("the store is empty. Run 'ragvault ingest' first")
	}

	results, err := a.search.Search(cmd.Context(), queryText, queryTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		if results == nil {
			results = []domain.SearchResult{}
		}
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	printResults(results)
	return nil
}

func printResults(results []domain.SearchResult) {
	for i, r := range results {
		fmt.Printf("--- [%d] %s #%d (score: %.2f) ---\n", i+1, r.Metadata.DocumentTitle, r.Metadata.ChunkIndex, r.Score)
		text := r.Metadata.Text
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Println(text)
		fmt.Println()
	}
}

func runDocuments(cmd *cobra.Command, args []string) error {
	a, err := openApp(GetConfig(), Logger())
	if err != nil {
		return err
	}

	docs := a.store.Documents()
	if documentsJSON {
		if docs == nil {
			docs = []domain.DocumentSummary{}
		}
		output, _ := json.MarshalIndent(docs, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(docs) == 0 {
		fmt.Println("No documents indexed.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tCHUNKS\tHASH")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%d\t%s\n", d.Title, d.ChunkCount, d.Hash)
	}
	return w.Flush()
}
