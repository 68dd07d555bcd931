// Package server provides the HTTP status server for mudra.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/dispatch"
	"github.com/ayusman/mudra/internal/logger"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

// Session is the part of app.Session the server reads from.
type Session interface {
	api.Toggle
	Status() app.Status
	LatestFrame() []byte
	Subscribe() (<-chan app.Observation, func())
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Session   Session
	Bindings  map[int]string
	Logger    *zap.Logger
}

// Server represents the HTTP server for the mudra status API.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    *zap.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    config.Logger,
	}
	if s.log == nil {
		s.log = logger.Log().Named("server")
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		dispatches := api.NewDispatchHandler(s.config.Store)
		s.mux.Handle("/api/dispatches", dispatches)
		s.mux.Handle("/api/dispatches/", dispatches)
	}

	if s.config.Session != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.Handle("/api/enabled", api.NewEnabledHandler(s.config.Session, s.config.Store))
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Session))
		s.mux.Handle("/api/ws", NewObservationHandler(s.config.Session, s.log))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	writeJSON(w, response)
}

type dispatchResponse struct {
	Count   int              `json:"count"`
	State   string           `json:"state"`
	Outcome dispatch.Outcome `json:"outcome"`
	Error   string           `json:"error,omitempty"`
	At      time.Time        `json:"at"`
}

func toDispatchResponse(r *dispatch.Result) *dispatchResponse {
	if r == nil {
		return nil
	}
	resp := &dispatchResponse{
		Count:   r.Count,
		State:   r.State,
		Outcome: r.Outcome,
		At:      r.At,
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

type bindingResponse struct {
	Count int    `json:"count"`
	State string `json:"state"`
}

type statusResponse struct {
	Running      bool              `json:"running"`
	Enabled      bool              `json:"enabled"`
	Frames       uint64            `json:"frames"`
	Hands        int               `json:"hands"`
	Count        int               `json:"count"`
	LastFrameAt  *time.Time        `json:"last_frame_at,omitempty"`
	LastDispatch *dispatchResponse `json:"last_dispatch,omitempty"`
	Bindings     []bindingResponse `json:"bindings"`
}

// handleStatus handles GET requests to /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.config.Session.Status()
	response := statusResponse{
		Running:      st.Running,
		Enabled:      st.Enabled,
		Frames:       st.Frames,
		Hands:        st.Hands,
		Count:        st.Count,
		LastDispatch: toDispatchResponse(st.LastDispatch),
		Bindings:     make([]bindingResponse, 0, len(s.config.Bindings)),
	}
	if !st.LastFrameAt.IsZero() {
		at := st.LastFrameAt
		response.LastFrameAt = &at
	}
	for count, state := range s.config.Bindings {
		response.Bindings = append(response.Bindings, bindingResponse{Count: count, State: state})
	}
	sort.Slice(response.Bindings, func(i, j int) bool {
		return response.Bindings[i].Count < response.Bindings[j].Count
	})

	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// parseIntDefault parses v as an int, falling back to def.
func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
