package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/stitch-works/stitch/internal/api"
	"github.com/stitch-works/stitch/internal/reconcile"
	"github.com/stitch-works/stitch/internal/store"
	"github.com/stitch-works/stitch/internal/svcctx"
)

// ListChunksEndpoint handles GET /api/documents/{id}/chunks.
type ListChunksEndpoint struct{}

func (e *ListChunksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/chunks", e.handler
}

func (e *ListChunksEndpoint) RequiresInit() bool { return true }

func (e *ListChunksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st := svcctx.StoreFrom(r.Context())

	if _, err := st.GetDocument(r.Context(), id); err != nil {
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
	writeJSON(w, http.StatusOK, chunks)
}

func (e *ListChunksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list <document-id>",
		Short: "List a document's current chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var chunks []store.Chunk
			if err := client.Get(cmd.Context(), "/api/documents/"+args[0]+"/chunks", &chunks); err != nil {
				return err
			}
			return api.Output(chunks)
		},
	}
}

// ValidateChunkEndpoint handles POST /api/documents/{id}/chunks/{chunkID}/validate.
// It records user confirmation that the chunk's offsets are correct.
type ValidateChunkEndpoint struct{}

func (e *ValidateChunkEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents/{id}/chunks/{chunkID}/validate", e.handler
}

func (e *ValidateChunkEndpoint) RequiresInit() bool { return true }

func (e *ValidateChunkEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	chunkID := r.PathValue("chunkID")

	err := svcctx.ReconcilerFrom(r.Context()).ValidatePosition(r.Context(), chunkID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chunk not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"validated": true})
}

func (e *ValidateChunkEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <document-id> <chunk-id>",
		Short: "Confirm a chunk's offsets are correct",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/documents/" + args[0] + "/chunks/" + args[1] + "/validate"
			var resp map[string]bool
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			fmt.Println("validated")
			return nil
		},
	}
}

// CorrectOffsetsRequest is a manual offset correction.
type CorrectOffsetsRequest struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Reason string `json:"reason,omitempty"`
}

// OverlapResponse is the structured 409 payload when a correction
// would collide with a neighboring chunk.
type OverlapResponse struct {
	Error     string               `json:"error"`
	Conflicts []reconcile.Conflict `json:"conflicts"`
}

// CorrectChunkEndpoint handles PATCH /api/documents/{id}/chunks/{chunkID}/offsets.
// Corrections are blocking: an overlap with a neighbor rejects the
// write with 409 and the conflicting ranges.
type CorrectChunkEndpoint struct{}

func (e *CorrectChunkEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/documents/{id}/chunks/{chunkID}/offsets", e.handler
}

func (e *CorrectChunkEndpoint) RequiresInit() bool { return true }

func (e *CorrectChunkEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	chunkID := r.PathValue("chunkID")

	var req CorrectOffsetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := svcctx.ReconcilerFrom(r.Context()).UpdateOffsets(r.Context(), chunkID, docID, req.Start, req.End, req.Reason)
	if err != nil {
		var overlapErr *reconcile.OverlapError
		switch {
		case errors.As(err, &overlapErr):
			writeJSON(w, http.StatusConflict, OverlapResponse{
				Error:     overlapErr.Error(),
				Conflicts: overlapErr.Conflicts,
			})
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "chunk not found")
		case errors.Is(err, reconcile.ErrPermission):
			writeError(w, http.StatusForbidden, "chunk does not belong to document")
		case errors.Is(err, store.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	chunk, err := svcctx.StoreFrom(r.Context()).GetChunk(r.Context(), chunkID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (e *CorrectChunkEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req CorrectOffsetsRequest
	cmd := &cobra.Command{
		Use:   "correct <document-id> <chunk-id>",
		Short: "Manually correct a chunk's offsets",
		Long: `Manually correct a chunk's offsets against the canonical markdown.
The chunk's content is rewritten to the markdown slice at the new
offsets, and the correction is appended to the chunk's history. A
correction that overlaps a neighboring chunk is rejected.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/documents/" + args[0] + "/chunks/" + args[1] + "/offsets"
			var chunk store.Chunk
			if err := client.Patch(cmd.Context(), path, req, &chunk); err != nil {
				return err
			}
			return api.Output(chunk)
		},
	}
	cmd.Flags().IntVar(&req.Start, "start", 0, "new start offset (required)")
	cmd.Flags().IntVar(&req.End, "end", 0, "new end offset (required)")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "why the offsets were wrong")
	return cmd
}
