// Package api holds the shared surface between the stitch HTTP server
// and its CLI: the Endpoint contract, the route/command registry, the
// HTTP client the CLI commands call through, and output formatting.
package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint is one API operation declared once and mounted twice: as an
// HTTP route on the server mux and as a cobra command that calls that
// route. Keeping both on a single type means the document, chunk,
// connection, job, and settings surfaces cannot drift between server
// and CLI.
type Endpoint interface {
	// Route returns the HTTP method, path pattern, and handler.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the route needs the wired service
	// graph (store, blob root) behind it. Such routes answer 503 until
	// the server finishes startup.
	RequiresInit() bool

	// Command returns the cobra command that invokes this endpoint over
	// HTTP. getServerURL is read at run time, after flag parsing.
	Command(getServerURL func() string) *cobra.Command
}
