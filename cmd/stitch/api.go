package main

import (
	"github.com/spf13/cobra"

	"github.com/stitch-works/stitch/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running stitch server via HTTP.

These commands require a running server (stitch serve).
Use --server to specify a custom server URL.

Examples:
  stitch api health                     # Check server health
  stitch api documents list <user>      # List a user's documents
  stitch api documents verify <id>      # Verify a document's offsets
  stitch api jobs list                  # List background jobs`,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Document management commands",
}

var chunksCmd = &cobra.Command{
	Use:   "chunks",
	Short: "Chunk position commands",
}

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "Connection detection commands",
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Job management commands",
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Configuration settings commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))

	// Documents as subcommand group
	documentsCmd.AddCommand((&endpoints.IngestDocumentEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.ListDocumentsEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.GetDocumentEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.DeleteDocumentEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.ReconcileDocumentEndpoint{}).Command(getServerURL))
	documentsCmd.AddCommand((&endpoints.VerifyDocumentEndpoint{}).Command(getServerURL))

	// Chunks as subcommand group
	chunksCmd.AddCommand((&endpoints.ListChunksEndpoint{}).Command(getServerURL))
	chunksCmd.AddCommand((&endpoints.ValidateChunkEndpoint{}).Command(getServerURL))
	chunksCmd.AddCommand((&endpoints.CorrectChunkEndpoint{}).Command(getServerURL))

	// Connections as subcommand group
	connectionsCmd.AddCommand((&endpoints.ListConnectionsEndpoint{}).Command(getServerURL))
	connectionsCmd.AddCommand((&endpoints.ReprocessConnectionsEndpoint{}).Command(getServerURL))
	connectionsCmd.AddCommand((&endpoints.ConnectionFeedbackEndpoint{}).Command(getServerURL))

	// Jobs as subcommand group
	jobsCmd.AddCommand((&endpoints.ListJobsEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.GetJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.CancelJobEndpoint{}).Command(getServerURL))

	// Settings as subcommand group
	settingsCmd.AddCommand((&endpoints.ListSettingsEndpoint{}).Command(getServerURL))
	settingsCmd.AddCommand((&endpoints.GetSettingEndpoint{}).Command(getServerURL))
	settingsCmd.AddCommand((&endpoints.UpdateSettingEndpoint{}).Command(getServerURL))
	settingsCmd.AddCommand((&endpoints.ResetSettingEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(documentsCmd)
	apiCmd.AddCommand(chunksCmd)
	apiCmd.AddCommand(connectionsCmd)
	apiCmd.AddCommand(jobsCmd)
	apiCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(apiCmd)
}
