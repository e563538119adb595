// Package history serves and fetches the request/response snapshot store:
// one JSON array of messages under a single well-known key.
package history

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/chatsync/internal/codec"
	"github.com/roach88/chatsync/internal/store"
)

// Key is the store key of the shared history.
const Key = "global-chat-history"

// Path is the history endpoint.
const Path = "/history"

// DefaultMaxBody bounds a POST body.
const DefaultMaxBody = 4 << 20

type server struct {
	blobs   store.BlobStore
	logger  *slog.Logger
	limits  *limiterPool
	maxBody int64
	reg     *prometheus.Registry
	metrics *serverMetrics
}

// Option configures the history server.
type Option func(*server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *server) {
		s.logger = l
	}
}

// WithRateLimit limits POSTs per client address. rps <= 0 or burst <= 0
// fall back to the defaults.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *server) {
		s.limits = &limiterPool{rps: rps, burst: burst}
	}
}

// WithMaxBody bounds the POST body size.
func WithMaxBody(n int64) Option {
	return func(s *server) {
		s.maxBody = n
	}
}

// WithRegistry registers server metrics on reg and serves it on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *server) {
		s.reg = reg
	}
}

// NewServer returns the history API handler backed by blobs.
//
//	GET  /history   stored array, or [] when nothing is stored
//	POST /history   replace the stored array
//	GET  /healthz   liveness
//	GET  /metrics   Prometheus metrics
func NewServer(blobs store.BlobStore, opts ...Option) http.Handler {
	s := &server{
		blobs:   blobs,
		logger:  slog.Default(),
		limits:  &limiterPool{},
		maxBody: DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reg == nil {
		s.reg = prometheus.NewRegistry()
	}
	s.metrics = newServerMetrics(s.reg)

	r := mux.NewRouter()
	r.Use(s.instrument)
	r.Methods(http.MethodGet).Path(Path).HandlerFunc(s.getHistory)
	r.Methods(http.MethodPost).Path(Path).HandlerFunc(s.postHistory)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.healthz)
	r.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	return r
}

func (s *server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.metrics.observe(r.Method, m.Code, m.Duration)
		s.logger.Debug("handled", "method", r.Method, "url", r.URL, "duration", m.Duration, "status", m.Code)
	})
}

func (s *server) getHistory(w http.ResponseWriter, r *http.Request) {
	data, ok, err := s.blobs.Get(r.Context(), Key)
	if err != nil {
		s.logger.Error("retrieve chat history", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to retrieve chat history."})
		return
	}
	if !ok || len(data) == 0 {
		data = []byte("[]")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *server) postHistory(w http.ResponseWriter, r *http.Request) {
	if !s.limits.Allow(clientKey(r)) {
		s.metrics.rateLimited.Inc()
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		http.Error(w, "Bad Request: body too large or unreadable.", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "Bad Request: No body provided.", http.StatusBadRequest)
		return
	}

	snap, err := codec.DecodeSnapshot(body)
	if err != nil {
		s.logger.Warn("rejected chat history", "bytes", len(body), "error", err)
		http.Error(w, "Bad Request: invalid chat history.", http.StatusBadRequest)
		return
	}
	data, err := codec.EncodeSnapshotArray(snap.Messages)
	if err != nil {
		http.Error(w, "Bad Request: invalid chat history.", http.StatusBadRequest)
		return
	}

	if err := s.blobs.Put(r.Context(), Key, data); err != nil {
		s.logger.Error("save chat history", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to save chat history."})
		return
	}
	s.metrics.stored.Set(float64(len(snap.Messages)))
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

func (s *server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", "GET, POST")
	http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
}

type errorBody struct {
	Error string `json:"error"`
}

type successBody struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// clientKey identifies the caller for rate limiting.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
