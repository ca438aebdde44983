package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragctx/internal/adapters/driving/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the REST API for document upload, status polling and retrieval.

Endpoints:
  POST   /api/documents              upload a document (returns 202)
  PUT    /api/documents/:id/content  re-ingest a document
  GET    /api/documents              list documents
  GET    /api/documents/:id          show a document
  GET    /api/documents/:id/status   poll ingestion status
  GET    /api/documents/:id/chunks   list chunks
  DELETE /api/documents/:id          delete a document
  POST   /api/search                 ranked chunks within a token budget
  POST   /api/context                assembled context string
  GET    /healthz                    liveness`,
	Annotations: map[string]string{resumeIngest: "true"},
	RunE:        runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "127.0.0.1:8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	server, err := httpapi.NewServer(&httpapi.Services{
		Ingest:   ingestService,
		Document: documentService,
		Search:   searchService,
		Context:  contextService,
		Defaults: searchDefaults,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "HTTP API listening on http://%s\n", serveAddr)
	return server.Run(cmd.Context(), serveAddr)
}
