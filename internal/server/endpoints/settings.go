package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stitch-works/stitch/internal/api"
	"github.com/stitch-works/stitch/internal/config"
	"github.com/stitch-works/stitch/internal/svcctx"
)

// ListSettingsEndpoint handles GET /api/settings.
type ListSettingsEndpoint struct{}

func (e *ListSettingsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/settings", e.handler
}

func (e *ListSettingsEndpoint) RequiresInit() bool { return true }

func (e *ListSettingsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	entries, err := svcctx.SettingsFrom(r.Context()).GetByPrefix(r.Context(), prefix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (e *ListSettingsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var entries map[string]config.Entry
			if err := client.Get(cmd.Context(), "/api/settings?prefix="+prefix, &entries); err != nil {
				return err
			}
			return api.Output(entries)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only list keys with this prefix")
	return cmd
}

// GetSettingEndpoint handles GET /api/settings/{key}.
type GetSettingEndpoint struct{}

func (e *GetSettingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/settings/{key}", e.handler
}

func (e *GetSettingEndpoint) RequiresInit() bool { return true }

func (e *GetSettingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	entry, err := svcctx.SettingsFrom(r.Context()).Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (e *GetSettingEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a setting by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var entry config.Entry
			if err := client.Get(cmd.Context(), "/api/settings/"+args[0], &entry); err != nil {
				return err
			}
			return api.Output(entry)
		},
	}
}

// UpdateSettingRequest sets a setting's value.
type UpdateSettingRequest struct {
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// UpdateSettingEndpoint handles PUT /api/settings/{key}. Weight keys
// also invalidate the engine weight cache so the next detection pass
// picks the change up immediately.
type UpdateSettingEndpoint struct{}

func (e *UpdateSettingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/settings/{key}", e.handler
}

func (e *UpdateSettingEndpoint) RequiresInit() bool { return true }

func (e *UpdateSettingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req UpdateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	settings := svcctx.SettingsFrom(r.Context())
	if req.Description == "" {
		if def := config.GetDefault(key); def != nil {
			req.Description = def.Description
		}
	}
	if err := settings.Set(r.Context(), key, req.Value, req.Description); err != nil {
		if errors.Is(err, config.ErrInvalidKey) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	invalidateWeights(r, key)

	entry, err := settings.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (e *UpdateSettingEndpoint) Command(getServerURL func() string) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Values parse as JSON when possible, else string.
			var value any
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				value = args[1]
			}

			client := api.NewClient(getServerURL())
			var entry config.Entry
			req := UpdateSettingRequest{Value: value, Description: description}
			if err := client.Put(cmd.Context(), "/api/settings/"+args[0], req, &entry); err != nil {
				return err
			}
			return api.Output(entry)
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "what the setting controls")
	return cmd
}

// ResetSettingEndpoint handles POST /api/settings/{key}/reset.
type ResetSettingEndpoint struct{}

func (e *ResetSettingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/settings/{key}/reset", e.handler
}

func (e *ResetSettingEndpoint) RequiresInit() bool { return true }

func (e *ResetSettingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	settings := svcctx.SettingsFrom(r.Context())
	if err := config.ResetToDefault(r.Context(), settings, key); err != nil {
		if errors.Is(err, config.ErrNoDefault) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	invalidateWeights(r, key)

	entry, err := settings.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (e *ResetSettingEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <key>",
		Short: "Reset a setting to its default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var entry config.Entry
			if err := client.Post(cmd.Context(), "/api/settings/"+args[0]+"/reset", nil, &entry); err != nil {
				return err
			}
			return api.Output(entry)
		},
	}
}

// invalidateWeights drops cached engine weights touched by a settings
// write. Global weight keys flush everything; per-user keys flush that
// user only.
func invalidateWeights(r *http.Request, key string) {
	weights := svcctx.WeightsFrom(r.Context())
	if weights == nil {
		return
	}
	switch {
	case strings.HasPrefix(key, "detection.weights."):
		weights.InvalidateAll()
	case strings.HasPrefix(key, "users.") && strings.Contains(key, ".weights."):
		userID := strings.TrimPrefix(key, "users.")
		userID = userID[:strings.Index(userID, ".weights.")]
		weights.Invalidate(userID)
	}
}
