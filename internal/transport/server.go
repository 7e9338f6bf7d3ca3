// Package transport exposes the host operations as JSON-over-POST routes.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/lightmode/internal/circuit"
	"github.com/roach88/lightmode/internal/host"
	"github.com/roach88/lightmode/internal/protocol"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// errBadBody marks request bodies that failed to decode.
var errBadBody = errors.New("malformed request body")

type server struct {
	host         *host.Host
	logger       *slog.Logger
	limiter      *RateLimiter
	maxBodyBytes int64
}

// Option configures the handler.
type Option func(*server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *server) { s.logger = l }
}

// WithRateLimiter installs per-IP rate limiting.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *server) { s.limiter = rl }
}

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(s *server) { s.maxBodyBytes = n }
}

// NewHandler routes the long-poll endpoints to h.
func NewHandler(h *host.Host, opts ...Option) http.Handler {
	s := &server{host: h, logger: slog.Default(), maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "transport")

	r := mux.NewRouter()
	r.Use(s.logRequests)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.HandleFunc(protocol.PathStart, s.handleStart).Methods(http.MethodPost)
	r.HandleFunc(protocol.PathInvokeMethod, route(s, h.InvokeMethod)).Methods(http.MethodPost)
	r.HandleFunc(protocol.PathLocation, route(s, h.LocationChanged)).Methods(http.MethodPost)
	r.HandleFunc(protocol.PathAfterRender, route(s, h.AfterRender)).Methods(http.MethodPost)
	r.HandleFunc(protocol.PathEndInvoke, route(s, h.EndInvoke)).Methods(http.MethodPost)
	r.HandleFunc(protocol.PathWaitForRender, route(s, h.WaitForRender)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusNotFound, "NO_ROUTE", "no such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST")
	})
	return r
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	var args protocol.StartArgs
	if err := s.decode(w, r, &args); err != nil {
		s.writeError(w, r, err)
		return
	}
	userAgent := args.UserAgent
	if userAgent == "" {
		userAgent = r.UserAgent()
	}
	resp, err := s.host.Start(r.Context(), circuit.SessionContext{
		Location:   args.Location,
		UserAgent:  userAgent,
		RemoteAddr: clientIP(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// route adapts a host operation taking body T to an HTTP handler.
func route[T any](s *server, op func(context.Context, T) (*protocol.Response, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var args T
		if err := s.decode(w, r, &args); err != nil {
			s.writeError(w, r, err)
			return
		}
		resp, err := op(r.Context(), args)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// writeError maps operation errors onto status codes:
// unknown circuit 404, bad input 400, renderer failure 500.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cerr *circuit.Error
	switch {
	case circuit.IsNotFound(err), circuit.IsClosed(err):
		errors.As(err, &cerr)
		writeErrorBody(w, http.StatusNotFound, string(cerr.Code), err.Error())
	case errors.Is(err, errBadBody), errors.Is(err, host.ErrInvalidArguments):
		writeErrorBody(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case circuit.IsFaulted(err):
		s.logger.Error("renderer failure", "path", r.URL.Path, "error", err)
		writeErrorBody(w, http.StatusInternalServerError, string(circuit.ErrCodeFaulted), "the circuit failed and was closed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErrorBody(w, http.StatusServiceUnavailable, "UNAVAILABLE", "request abandoned")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeErrorBody(w, http.StatusInternalServerError, "INTERNAL", "an unexpected error occurred")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, protocol.ErrorBody{Code: code, Message: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
