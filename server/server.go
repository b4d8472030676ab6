// Package server exposes the footstep planner over HTTP: synchronous plan
// requests, persisted run history and cron-scheduled scenarios.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/petal-labs/footplan/bus"
	"github.com/petal-labs/footplan/runtime"
	"github.com/petal-labs/footplan/sse"
)

// DefaultMaxPlanTimeout caps the planning budget of a single request.
const DefaultMaxPlanTimeout = time.Minute

// ServerConfig configures a Server instance.
type ServerConfig struct {
	ScheduleStore  ScheduleStore
	Bus            bus.EventBus
	EventStore     bus.EventStore
	RuntimeEvents  runtime.EventHandler
	EmitDecorator  runtime.EventEmitterDecorator
	NodeEvents     bool
	MaxPlanTimeout time.Duration
	CORSOrigin     string
	MaxBody        int64
	Logger         *slog.Logger

	// BusTickCoalesce, when positive, coalesces the search.tick events each
	// run publishes on Bus to at most one per interval.
	BusTickCoalesce time.Duration
}

// Server is the footplan HTTP API server.
type Server struct {
	scheduleStore  ScheduleStore
	bus            bus.EventBus
	eventStore     bus.EventStore
	runtimeEvents  runtime.EventHandler
	emitDecorator  runtime.EventEmitterDecorator
	nodeEvents     bool
	maxPlanTimeout time.Duration
	corsOrigin     string
	maxBody        int64
	logger         *slog.Logger
	tickCoalesce   time.Duration

	activeRunsMu sync.RWMutex
	activeRuns   map[string]struct{}
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	maxPlanTimeout := cfg.MaxPlanTimeout
	if maxPlanTimeout <= 0 {
		maxPlanTimeout = DefaultMaxPlanTimeout
	}
	return &Server{
		scheduleStore:  cfg.ScheduleStore,
		bus:            cfg.Bus,
		eventStore:     cfg.EventStore,
		runtimeEvents:  cfg.RuntimeEvents,
		emitDecorator:  cfg.EmitDecorator,
		nodeEvents:     cfg.NodeEvents,
		maxPlanTimeout: maxPlanTimeout,
		corsOrigin:     corsOrigin,
		maxBody:        maxBody,
		logger:         logger,
		tickCoalesce:   cfg.BusTickCoalesce,
		activeRuns:     map[string]struct{}{},
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)

	return handler
}

// RegisterRoutes mounts the planner API routes onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/plans", s.handleCreatePlan)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{run_id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{run_id}/events", s.handleRunEvents)
	if s.bus != nil {
		mux.Handle("GET /api/runs/{run_id}/stream", sse.NewSSEHandler(s.eventStore, s.bus))
		mux.Handle("GET /api/events/stream", sse.NewSSEHandler(nil, s.bus))
	}
	mux.HandleFunc("GET /api/schedules", s.handleListSchedules)
	mux.HandleFunc("POST /api/schedules", s.handleCreateSchedule)
	mux.HandleFunc("GET /api/schedules/{id}", s.handleGetSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}", s.handleUpdateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.handleDeleteSchedule)
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the error envelope of every failed request.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	body := apiError{
		Error: apiErrorBody{
			Code:    code,
			Message: message,
		},
	}
	if len(details) > 0 {
		body.Error.Details = details
	}
	writeJSON(w, status, body)
}
