package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/mudra/internal/store"
)

// DefaultListLimit caps GET /api/dispatches when no limit is given.
const DefaultListLimit = 50

// DispatchHandler serves the dispatch history.
type DispatchHandler struct {
	store *store.Store
}

// NewDispatchHandler creates a DispatchHandler reading from s.
func NewDispatchHandler(s *store.Store) *DispatchHandler {
	return &DispatchHandler{store: s}
}

// ServeHTTP routes /api/dispatches and /api/dispatches/{id}.
func (h *DispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/dispatches")
	id = strings.TrimPrefix(id, "/")

	if id == "" {
		h.list(w, r)
		return
	}
	h.get(w, r, id)
}

type listDispatchesResponse struct {
	Dispatches []*store.Dispatch `json:"dispatches"`
}

// list handles GET /api/dispatches?limit=N, newest first.
func (h *DispatchHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	dispatches, err := h.store.Dispatches().List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list dispatches")
		return
	}

	writeJSON(w, http.StatusOK, listDispatchesResponse{Dispatches: dispatches})
}

// get handles GET /api/dispatches/{id}.
func (h *DispatchHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	d, err := h.store.Dispatches().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Dispatch not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get dispatch")
		return
	}

	writeJSON(w, http.StatusOK, d)
}
