package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var contextFlags queryFlags

var contextCmd = &cobra.Command{
	Use:   "context [query]",
	Short: "Build a prompt context for a query",
	Long: `Runs a search and prints the selected chunks as one context string,
each section prefixed with the title of its source document. The output
never exceeds the token budget.`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

func init() {
	contextFlags.register(contextCmd.Flags())
	rootCmd.AddCommand(contextCmd)
}

// contextJSON is the JSON form of an assembled context.
type contextJSON struct {
	Context    string           `json:"context"`
	TokenCount int              `json:"token_count"`
	Result     searchResultJSON `json:"result"`
}

func runContext(cmd *cobra.Command, args []string) error {
	if contextService == nil {
		return errors.New("context service not configured")
	}

	assembled, err := contextService.BuildContext(cmd.Context(), contextFlags.query(cmd, args[0]))
	if err != nil {
		return fmt.Errorf("context failed: %w", err)
	}

	if contextFlags.json {
		return outputJSON(cmd, contextJSON{
			Context:    assembled.Text,
			TokenCount: assembled.TokenCount,
			Result:     newSearchResultJSON(assembled.Result),
		})
	}

	if assembled.Text == "" {
		cmd.PrintErrln("No relevant context found.")
		return nil
	}
	cmd.Println(assembled.Text)
	if assembled.Result.Partial {
		cmd.PrintErrln("Warning: the search timed out; context is partial.")
	}
	return nil
}
