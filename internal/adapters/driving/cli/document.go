package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage ingested documents",
	Long:  `List, inspect, poll or delete ingested documents.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentShowCmd = &cobra.Command{
	Use:   "show [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentShow,
}

var documentChunksCmd = &cobra.Command{
	Use:   "chunks [doc-id]",
	Short: "Print the chunks of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentChunks,
}

var documentStatusCmd = &cobra.Command{
	Use:   "status [doc-id]",
	Short: "Show ingestion status",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentStatus,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document",
	Long:  `Cancels in-flight ingestion and removes the document, its chunks and their embeddings.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

var documentTagCmd = &cobra.Command{
	Use:   "tag [doc-id] [collection...]",
	Short: "Add a document to collections",
	Long: `Adds collection tags to a document. With --replace the given tags become
the full set, and no tags clears it. Tagging never re-ingests the document.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDocumentTag,
}

var documentUntagCmd = &cobra.Command{
	Use:   "untag [doc-id] [collection...]",
	Short: "Remove a document from collections",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runDocumentUntag,
}

var (
	listStatuses    []string
	listCollections []string
	tagReplace      bool
)

func init() {
	documentListCmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "filter by status")
	documentListCmd.Flags().StringSliceVarP(&listCollections, "collection", "c", nil, "filter by collection")
	documentTagCmd.Flags().BoolVar(&tagReplace, "replace", false, "replace all tags instead of adding")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentShowCmd)
	documentCmd.AddCommand(documentChunksCmd)
	documentCmd.AddCommand(documentStatusCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	documentCmd.AddCommand(documentTagCmd)
	documentCmd.AddCommand(documentUntagCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	filter := domain.DocumentFilter{Collections: listCollections}
	for _, s := range listStatuses {
		status := domain.DocumentStatus(s)
		if !status.IsValid() {
			return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	docs, err := documentService.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	cmd.Println("Documents:")
	cmd.Println()
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Title:  %s\n", docs[i].Title)
		cmd.Printf("    Status: %s\n", docs[i].Status)
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentShow(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Title:       %s\n", doc.Title)
	if doc.FileType != "" {
		cmd.Printf("  Type:        %s\n", doc.FileType)
	}
	if doc.Language != "" {
		cmd.Printf("  Language:    %s\n", doc.Language)
	}
	if len(doc.Collections) > 0 {
		cmd.Printf("  Collections: %v\n", doc.Collections)
	}
	cmd.Printf("  Status:      %s\n", doc.Status)
	if doc.ProcessingError != "" {
		cmd.Printf("  Error:       %s\n", doc.ProcessingError)
	}
	cmd.Printf("  Generation:  %d\n", doc.Generation)
	cmd.Printf("  Chunking:    size %d, overlap %d\n", doc.ChunkConfig.Size, doc.ChunkConfig.Overlap)
	cmd.Printf("  Created:     %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Updated:     %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))

	if len(doc.Metadata) > 0 {
		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		cmd.Println("\n  Metadata:")
		for _, k := range keys {
			cmd.Printf("    %s: %v\n", k, doc.Metadata[k])
		}
	}

	return nil
}

func runDocumentChunks(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	chunks, err := documentService.Chunks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}

	if len(chunks) == 0 {
		cmd.Println("No chunks.")
		return nil
	}

	for i := range chunks {
		cmd.Printf("--- #%d %s (%d tokens", chunks[i].Sequence, chunks[i].ID, chunks[i].TokenCount)
		if chunks[i].Page > 0 {
			cmd.Printf(", page %d", chunks[i].Page)
		}
		cmd.Println(")")
		cmd.Println(chunks[i].Content)
	}
	return nil
}

func runDocumentStatus(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	report, err := documentService.Status(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	printStatus(cmd, report)
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	if err := documentService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Document %s deleted.\n", args[0])
	return nil
}

func runDocumentTag(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	var (
		doc *domain.Document
		err error
	)
	if tagReplace {
		doc, err = documentService.SetCollections(cmd.Context(), args[0], args[1:])
	} else {
		if len(args) < 2 {
			return fmt.Errorf("%w: at least one collection is required", domain.ErrInvalidInput)
		}
		doc, err = documentService.UpdateCollections(cmd.Context(), args[0], args[1:], nil)
	}
	if err != nil {
		return fmt.Errorf("failed to tag document: %w", err)
	}

	printCollections(cmd, doc)
	return nil
}

func runDocumentUntag(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.UpdateCollections(cmd.Context(), args[0], nil, args[1:])
	if err != nil {
		return fmt.Errorf("failed to untag document: %w", err)
	}

	printCollections(cmd, doc)
	return nil
}

func printCollections(cmd *cobra.Command, doc *domain.Document) {
	if len(doc.Collections) == 0 {
		cmd.Printf("Document %s is in no collections.\n", doc.ID)
		return
	}
	cmd.Printf("Document %s collections: %s\n", doc.ID, strings.Join(doc.Collections, ", "))
}

func printStatus(cmd *cobra.Command, report *domain.StatusReport) {
	cmd.Printf("Document %s: %s (generation %d)\n", report.DocumentID, report.Status, report.Generation)
	cmd.Printf("  Chunks: %d indexed, %d failed, %d total\n",
		report.IndexedChunks, report.FailedChunks, report.TotalChunks)
	if report.ProcessingError != "" {
		cmd.Printf("  Error: %s\n", report.ProcessingError)
	}
}
