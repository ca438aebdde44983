package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage collections",
	Long: `Collections are tags carried by documents. Use "document tag" to add a
document to one; a collection exists while at least one document carries it.`,
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections with document counts",
	Args:  cobra.NoArgs,
	RunE:  runCollectionList,
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Remove a collection from every document",
	Long:  `Strips the collection tag from every document. The documents themselves are kept.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCollectionDelete,
}

func init() {
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionDeleteCmd)
	rootCmd.AddCommand(collectionCmd)
}

func runCollectionList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	collections, err := documentService.Collections(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	if len(collections) == 0 {
		cmd.Println("No collections found.")
		return nil
	}

	cmd.Println("Collections:")
	for _, c := range collections {
		cmd.Printf("  %-24s %d documents\n", c.Name, c.Documents)
	}
	return nil
}

func runCollectionDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	n, err := documentService.DeleteCollection(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	cmd.Printf("Collection %s removed from %d documents.\n", args[0], n)
	return nil
}
