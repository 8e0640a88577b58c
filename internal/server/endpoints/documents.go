package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"github.com/stitch-works/stitch/internal/api"
	"github.com/stitch-works/stitch/internal/jobs"
	"github.com/stitch-works/stitch/internal/store"
	"github.com/stitch-works/stitch/internal/svcctx"
)

// IngestRequest enqueues an ingest job for a prepared extraction.
type IngestRequest struct {
	UserID        string `json:"user_id"`
	Title         string `json:"title,omitempty"`
	MarkdownPath  string `json:"markdown_path"`
	ChunksPath    string `json:"chunks_path"`
	SourcePDFPath string `json:"source_pdf_path,omitempty"`
	SkipReconcile bool   `json:"skip_reconcile,omitempty"`
}

// IngestResponse returns the queued job.
type IngestResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// IngestDocumentEndpoint handles POST /api/documents.
type IngestDocumentEndpoint struct{}

func (e *IngestDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents", e.handler
}

func (e *IngestDocumentEndpoint) RequiresInit() bool { return true }

func (e *IngestDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.MarkdownPath == "" || req.ChunksPath == "" {
		writeError(w, http.StatusBadRequest, "user_id, markdown_path, and chunks_path are required")
		return
	}

	input, err := json.Marshal(jobs.IngestDocumentInput{
		UserID:        req.UserID,
		Title:         req.Title,
		MarkdownPath:  req.MarkdownPath,
		ChunksPath:    req.ChunksPath,
		SourcePDFPath: req.SourcePDFPath,
		SkipReconcile: req.SkipReconcile,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	job, err := svcctx.StoreFrom(r.Context()).CreateJob(r.Context(), string(jobs.KindIngestDocument), datatypes.JSON(input))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, IngestResponse{JobID: job.ID, Status: string(job.Status)})
}

func (e *IngestDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req IngestRequest
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Queue ingestion of a prepared extraction",
		Long: `Queue a background job that persists a document from a prepared
extraction: the canonical markdown file and the chunker's JSON output.
Unless --skip-reconcile is set, a reconcile job is chained automatically
once ingestion completes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp IngestResponse
			if err := client.Post(cmd.Context(), "/api/documents", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&req.UserID, "user", "", "owning user id (required)")
	cmd.Flags().StringVar(&req.Title, "title", "", "document title")
	cmd.Flags().StringVar(&req.MarkdownPath, "markdown", "", "path to canonical markdown (required)")
	cmd.Flags().StringVar(&req.ChunksPath, "chunks", "", "path to chunker output JSON (required)")
	cmd.Flags().StringVar(&req.SourcePDFPath, "pdf", "", "path to the original PDF")
	cmd.Flags().BoolVar(&req.SkipReconcile, "skip-reconcile", false, "do not chain a reconcile job")
	return cmd
}

// ListDocumentsEndpoint handles GET /api/documents.
type ListDocumentsEndpoint struct{}

func (e *ListDocumentsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents", e.handler
}

func (e *ListDocumentsEndpoint) RequiresInit() bool { return true }

func (e *ListDocumentsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	docs, err := svcctx.StoreFrom(r.Context()).ListDocuments(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (e *ListDocumentsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list <user>",
		Short: "List a user's documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var docs []store.Document
			if err := client.Get(cmd.Context(), "/api/documents?user="+args[0], &docs); err != nil {
				return err
			}
			return api.Output(docs)
		},
	}
}

// DocumentResponse is a document with its chunk count and connection
// count attached.
type DocumentResponse struct {
	*store.Document
	ChunkCount      int   `json:"chunk_count"`
	ConnectionCount int64 `json:"connection_count"`
}

// GetDocumentEndpoint handles GET /api/documents/{id}.
type GetDocumentEndpoint struct{}

func (e *GetDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}", e.handler
}

func (e *GetDocumentEndpoint) RequiresInit() bool { return true }

func (e *GetDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st := svcctx.StoreFrom(r.Context())

	doc, err := st.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	chunks, err := st.ChunksByDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	connCount, err := st.CountConnectionsForDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, DocumentResponse{
		Document:        doc,
		ChunkCount:      len(chunks),
		ConnectionCount: connCount,
	})
}

func (e *GetDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a document by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp DocumentResponse
			if err := client.Get(cmd.Context(), "/api/documents/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// DeleteDocumentEndpoint handles DELETE /api/documents/{id}. Removes
// the document row, its chunks and connections, and its blobs.
type DeleteDocumentEndpoint struct{}

func (e *DeleteDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/documents/{id}", e.handler
}

func (e *DeleteDocumentEndpoint) RequiresInit() bool { return true }

func (e *DeleteDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st := svcctx.StoreFrom(r.Context())

	doc, err := st.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := st.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Blobs go last: a failure here leaves orphaned files, not broken rows.
	blobs := svcctx.BlobsFrom(r.Context())
	keys, err := blobs.List(r.Context(), doc.StoragePath)
	if err == nil {
		for _, key := range keys {
			if derr := blobs.Delete(r.Context(), key); derr != nil {
				svcctx.LoggerFrom(r.Context()).Warn("failed to delete blob", "key", key, "error", derr)
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and everything derived from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/api/documents/"+args[0]); err != nil {
				return err
			}
			fmt.Println("deleted")
			return nil
		},
	}
}
