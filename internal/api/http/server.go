package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/oshokin/escape-alarm/internal/domain/alarm"
	"github.com/oshokin/escape-alarm/internal/logger"
)

// Request headers identifying the operator behind a mutation.
const (
	HeaderActorHostname = "X-Actor-Hostname"
	HeaderActorUsername = "X-Actor-Username"
)

// maxPayloadBytes caps trigger request bodies.
const maxPayloadBytes = 1 << 20

var errPayloadNotObject = errors.New("payload must be a JSON object")

// Service abstracts the engine operations the HTTP layer depends on.
type Service interface {
	Trigger(ctx context.Context, payload alarm.Payload) *alarm.Record
	DismissVisual(ctx context.Context)
	Resolve(ctx context.Context, id alarm.AlertID) bool
	StopAll(ctx context.Context) int
	Snapshot() alarm.Snapshot
	Subscribe() (<-chan alarm.Snapshot, func())
}

// Server serves the HTTP API.
type Server struct {
	// service is the alarm engine.
	service Service
	// metrics serves /metrics when set.
	metrics http.Handler
	// ctx carries the base logger for request logs.
	ctx context.Context
}

// Option configures the server.
type Option func(*Server)

// WithMetrics mounts the handler on /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

// NewServer creates the HTTP API over the engine.
func NewServer(ctx context.Context, service Service, opts ...Option) *Server {
	s := &Server{
		service: service,
		ctx:     logger.WithName(ctx, "http"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderActorHostname, HeaderActorUsername},
	}))
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/alarm", s.handleSnapshot)
		r.Get("/alarm/stream", s.handleStream)
		r.Post("/alarm/dismiss", s.handleDismiss)
		r.Post("/alarm/stop", s.handleStopAll)
		r.Post("/alarms", s.handleTrigger)
		r.Post("/alarms/{id}/resolve", s.handleResolve)
	})

	return r
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Snapshot())
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	rec := s.service.Trigger(s.requestContext(r), payload)
	if rec == nil {
		http.Error(w, "engine is shutting down", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := alarm.NormalizeID(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "alert id is required", http.StatusBadRequest)
		return
	}

	resolved := s.service.Resolve(s.requestContext(r), id)

	writeJSON(w, http.StatusOK, map[string]any{
		"alert_id": id,
		"resolved": resolved,
	})
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.service.DismissVisual(s.requestContext(r))
	writeJSON(w, http.StatusOK, s.service.Snapshot())
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	removed := s.service.StopAll(s.requestContext(r))

	writeJSON(w, http.StatusOK, map[string]any{
		"removed": removed,
	})
}

// requestContext returns the request context carrying the server logger,
// tagged with the operator headers when present.
func (s *Server) requestContext(r *http.Request) context.Context {
	ctx := logger.ToContext(r.Context(), logger.FromContext(s.ctx))

	actor := &alarm.Actor{
		Hostname: r.Header.Get(HeaderActorHostname),
		Username: r.Header.Get(HeaderActorUsername),
	}

	if actor.Hostname != "" || actor.Username != "" {
		ctx = logger.WithKV(ctx, "actor", actor.String())
	}

	return ctx
}

// logRequests logs every request at debug level after it completes.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()

		next.ServeHTTP(ww, r)

		logger.DebugKV(s.ctx, "HTTP request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
		)
	})
}

// decodePayload reads a JSON object, keeping numbers exact.
func decodePayload(body io.Reader) (alarm.Payload, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errPayloadNotObject
	}

	return alarm.Payload(obj), nil
}

func writeJSON(w http.ResponseWriter, code int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(value)
}
