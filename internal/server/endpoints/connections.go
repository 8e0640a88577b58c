package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"github.com/stitch-works/stitch/internal/api"
	"github.com/stitch-works/stitch/internal/connections"
	"github.com/stitch-works/stitch/internal/jobs"
	"github.com/stitch-works/stitch/internal/store"
	"github.com/stitch-works/stitch/internal/svcctx"
)

// ListConnectionsEndpoint handles GET /api/documents/{id}/connections.
type ListConnectionsEndpoint struct{}

func (e *ListConnectionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/connections", e.handler
}

func (e *ListConnectionsEndpoint) RequiresInit() bool { return true }

func (e *ListConnectionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	conns, err := st.ConnectionsForDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

func (e *ListConnectionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list <document-id>",
		Short: "List a document's connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var conns []store.Connection
			if err := client.Get(cmd.Context(), "/api/documents/"+args[0]+"/connections", &conns); err != nil {
				return err
			}
			return api.Output(conns)
		},
	}
}

// ReprocessRequest queues a connection detection pass.
type ReprocessRequest struct {
	Mode        string   `json:"mode"`
	BackupFirst bool     `json:"backup_first"`
	ChunkIDs    []string `json:"chunk_ids,omitempty"`
	MinStrength float64  `json:"min_strength,omitempty"`
	MaxPairs    int      `json:"max_pairs,omitempty"`
}

// ReprocessConnectionsEndpoint handles POST /api/documents/{id}/connections/reprocess.
type ReprocessConnectionsEndpoint struct{}

func (e *ReprocessConnectionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents/{id}/connections/reprocess", e.handler
}

func (e *ReprocessConnectionsEndpoint) RequiresInit() bool { return true }

func (e *ReprocessConnectionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	var req ReprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	mode := connections.Mode(req.Mode)
	switch mode {
	case connections.ModeAll, connections.ModeSmart, connections.ModeAddNew:
	case "":
		mode = connections.ModeSmart
	default:
		writeError(w, http.StatusBadRequest, "unknown mode: "+req.Mode)
		return
	}

	input, err := json.Marshal(jobs.DetectConnectionsInput{
		DocumentID:  id,
		Mode:        mode,
		BackupFirst: req.BackupFirst,
		ChunkIDs:    req.ChunkIDs,
		MinStrength: req.MinStrength,
		MaxPairs:    req.MaxPairs,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	job, err := st.CreateJob(r.Context(), string(jobs.KindDetectConnections), datatypes.JSON(input))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, IngestResponse{JobID: job.ID, Status: string(job.Status)})
}

func (e *ReprocessConnectionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req ReprocessRequest
	cmd := &cobra.Command{
		Use:   "reprocess <document-id>",
		Short: "Queue a connection detection pass",
		Long: `Queue a background job that runs the detection engines over a document.

Modes:
  all      delete every existing connection, detect from scratch
  smart    preserve user-validated connections, re-detect the rest
  add_new  keep everything, only connect against newer documents`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp IngestResponse
			path := "/api/documents/" + args[0] + "/connections/reprocess"
			if err := client.Post(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&req.Mode, "mode", "smart", "detection mode: all, smart, or add_new")
	cmd.Flags().BoolVar(&req.BackupFirst, "backup", false, "back up validated connections before deleting")
	cmd.Flags().Float64Var(&req.MinStrength, "min-strength", 0, "override the minimum connection strength")
	cmd.Flags().IntVar(&req.MaxPairs, "max-pairs", 0, "override the classifier pair budget")
	return cmd
}

// FeedbackRequest records user feedback on a connection. Omitted
// fields are left untouched.
type FeedbackRequest struct {
	Validated *bool `json:"validated,omitempty"`
	Starred   *bool `json:"starred,omitempty"`
}

// ConnectionFeedbackEndpoint handles POST /api/connections/{id}/feedback.
type ConnectionFeedbackEndpoint struct{}

func (e *ConnectionFeedbackEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/connections/{id}/feedback", e.handler
}

func (e *ConnectionFeedbackEndpoint) RequiresInit() bool { return true }

func (e *ConnectionFeedbackEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Validated == nil && req.Starred == nil {
		writeError(w, http.StatusBadRequest, "feedback requires validated or starred")
		return
	}

	err := svcctx.StoreFrom(r.Context()).SetConnectionFeedback(r.Context(), id, req.Validated, req.Starred)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (e *ConnectionFeedbackEndpoint) Command(getServerURL func() string) *cobra.Command {
	var validated, rejected, starred bool
	cmd := &cobra.Command{
		Use:   "feedback <connection-id>",
		Short: "Validate, reject, or star a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := FeedbackRequest{}
			switch {
			case validated && rejected:
				return errors.New("pick one of --validate or --reject")
			case validated:
				v := true
				req.Validated = &v
			case rejected:
				v := false
				req.Validated = &v
			}
			if starred {
				s := true
				req.Starred = &s
			}

			client := api.NewClient(getServerURL())
			var resp map[string]bool
			path := "/api/connections/" + args[0] + "/feedback"
			if err := client.Post(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&validated, "validate", false, "mark the connection as correct")
	cmd.Flags().BoolVar(&rejected, "reject", false, "mark the connection as wrong")
	cmd.Flags().BoolVar(&starred, "star", false, "star the connection")
	return cmd
}
