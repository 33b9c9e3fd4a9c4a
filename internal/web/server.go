// Package web provides an HTTP status server for the gpio-controller daemon.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/sweeney/gpio-controller/internal/status"
	"github.com/sweeney/gpio-controller/internal/worker"
)

// Stopper stops group members on request. *worker.Group satisfies it.
type Stopper interface {
	Stop(name string, forceful bool) error
	StopAll(forceful bool)
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithStopper enables POST /stop.
func WithStopper(st Stopper) Option {
	return func(s *Server) { s.stopper = st }
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	metrics    http.Handler
	stopper    Stopper
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts ...Option) *Server {
	s := &Server{tracker: tracker}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/stop", s.handleStop)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleStop serves POST /stop?worker=<name>&force=<bool>. Without a worker
// the whole group is stopped.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.stopper == nil {
		http.Error(w, "no group running", http.StatusServiceUnavailable)
		return
	}

	forceful := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid force value", http.StatusBadRequest)
			return
		}
		forceful = b
	}

	name := r.URL.Query().Get("worker")
	if name == "" {
		s.stopper.StopAll(forceful)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	err := s.stopper.Stop(name, forceful)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, worker.ErrUnknownIdentity):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusConflict)
	}
}
