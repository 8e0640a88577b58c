package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"github.com/stitch-works/stitch/internal/api"
	"github.com/stitch-works/stitch/internal/jobs"
	"github.com/stitch-works/stitch/internal/reconcile"
	"github.com/stitch-works/stitch/internal/store"
	"github.com/stitch-works/stitch/internal/svcctx"
)

// ReconcileRequest queues a reconciliation pass.
type ReconcileRequest struct {
	DryRun bool `json:"dry_run"`
}

// ReconcileDocumentEndpoint handles POST /api/documents/{id}/reconcile.
// The pass runs as a background job; poll the returned job for the
// summary.
type ReconcileDocumentEndpoint struct{}

func (e *ReconcileDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/documents/{id}/reconcile", e.handler
}

func (e *ReconcileDocumentEndpoint) RequiresInit() bool { return true }

func (e *ReconcileDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	var req ReconcileRequest
	if r.Body != nil {
		// Body is optional; an empty body means a real pass.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	input, err := json.Marshal(jobs.ReconcileDocumentInput{DocumentID: id, DryRun: req.DryRun})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	job, err := st.CreateJob(r.Context(), string(jobs.KindReconcileDocument), datatypes.JSON(input))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, IngestResponse{JobID: job.ID, Status: string(job.Status)})
}

func (e *ReconcileDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reconcile <document-id>",
		Short: "Queue an offset reconciliation pass",
		Long: `Queue a background job that recomputes every chunk's offsets against
the document's canonical markdown. With --dry-run, matching runs and
the summary reports what would change, but nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp IngestResponse
			path := "/api/documents/" + args[0] + "/reconcile"
			if err := client.Post(cmd.Context(), path, ReconcileRequest{DryRun: dryRun}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report repairs without writing them")
	return cmd
}

// VerifyDocumentEndpoint handles GET /api/documents/{id}/verify. The
// oracle is read-only and cheap, so it runs inline.
type VerifyDocumentEndpoint struct{}

func (e *VerifyDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/documents/{id}/verify", e.handler
}

func (e *VerifyDocumentEndpoint) RequiresInit() bool { return true }

func (e *VerifyDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	report, err := svcctx.ReconcilerFrom(r.Context()).Verify(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (e *VerifyDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <document-id>",
		Short: "Check the offset-content invariant for every chunk",
		Long: `Run the read-only verification oracle: for every chunk claiming a real
textual match, the markdown slice at its offsets must equal its content
byte for byte. Exits non-zero when any chunk fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var report reconcile.VerifyReport
			if err := client.Get(cmd.Context(), "/api/documents/"+args[0]+"/verify", &report); err != nil {
				return err
			}
			if err := api.Output(report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return errors.New("verification failed: offsets do not match content")
			}
			return nil
		},
	}
}
