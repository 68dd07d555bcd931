package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/logger"
	"github.com/ayusman/mudra/internal/store"
)

// Toggle is something that can be switched on and off.
type Toggle interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
}

// EnabledHandler reads and changes whether finger counts are dispatched.
// Changes are persisted when a store is configured.
type EnabledHandler struct {
	toggle Toggle
	store  *store.Store
}

// NewEnabledHandler creates an EnabledHandler. s may be nil.
func NewEnabledHandler(t Toggle, s *store.Store) *EnabledHandler {
	return &EnabledHandler{toggle: t, store: s}
}

type enabledBody struct {
	Enabled *bool `json:"enabled"`
}

type enabledResponse struct {
	Enabled bool `json:"enabled"`
}

// ServeHTTP handles GET and PUT /api/enabled.
func (h *EnabledHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, enabledResponse{Enabled: h.toggle.IsEnabled()})
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *EnabledHandler) update(w http.ResponseWriter, r *http.Request) {
	var body enabledBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	h.toggle.SetEnabled(*body.Enabled)

	if h.store != nil {
		if err := h.store.Settings().SetBool(r.Context(), store.SettingDispatchEnabled, *body.Enabled); err != nil {
			logger.Log().Named("api").Warn("persist enabled setting", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to save setting")
			return
		}
	}

	writeJSON(w, http.StatusOK, enabledResponse{Enabled: h.toggle.IsEnabled()})
}
