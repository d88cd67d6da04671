package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/msim-telephony/internal/coordinator"
	"github.com/sweeney/msim-telephony/internal/xdivert"
)

type snapshotter interface {
	Snapshot() coordinator.Snapshot
}

type xdivertService interface {
	Status() xdivert.Status
	Request(enable bool) error
}

// statusServer exposes health, state and metrics, and accepts XDivert
// requests.
type statusServer struct {
	router    *chi.Mux
	coord     snapshotter
	xdivert   xdivertService
	connected func() bool
	metrics   http.Handler
}

// newStatusServer mounts the routes. xd may be nil when XDivert is not
// available on this device.
func newStatusServer(coord snapshotter, xd xdivertService, connected func() bool, metricsHandler http.Handler) *statusServer {
	s := &statusServer{
		router:    chi.NewRouter(),
		coord:     coord,
		xdivert:   xd,
		connected: connected,
		metrics:   metricsHandler,
	}
	s.routes()
	return s
}

func (s *statusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *statusServer) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", s.metrics)
	r.Post("/xdivert", s.handleXDivert)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *statusServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connected := s.connected()
	status := http.StatusOK
	if !connected {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"platform_connected": connected})
}

type statusResponse struct {
	Coordinator coordinator.Snapshot `json:"coordinator"`
	XDivert     *xdivert.Status      `json:"xdivert,omitempty"`
}

func (s *statusServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Coordinator: s.coord.Snapshot()}
	if s.xdivert != nil {
		st := s.xdivert.Status()
		resp.XDivert = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

type xdivertRequest struct {
	Enable *bool `json:"enable"`
}

func (s *statusServer) handleXDivert(w http.ResponseWriter, r *http.Request) {
	if s.xdivert == nil {
		writeError(w, http.StatusNotFound, "xdivert needs exactly two subscriptions")
		return
	}
	var req xdivertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enable == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enable": true|false}`)
		return
	}
	if err := s.xdivert.Request(*req.Enable); err != nil {
		if errors.Is(err, xdivert.ErrBusy) {
			writeError(w, http.StatusConflict, "a sync is already queued")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"enable": *req.Enable})
}
