package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tolelom/tolbook/internal/metrics"
)

const maxTrackedClients = 10_000

// Options tune a Server. Zero values disable auth and rate limiting.
type Options struct {
	AuthToken     string  // empty → no auth required
	RatePerSecond float64 // per client IP
	Burst         int
	Logger        *zap.Logger
}

// Server is a JSON-RPC 2.0 HTTP server. Besides POST / it serves
// GET /healthz and the Prometheus collectors on GET /metrics.
type Server struct {
	handler *Handler
	addr    string
	opts    Options
	logger  *zap.Logger
	router  chi.Router
	srv     *http.Server

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer creates a Server on addr.
func NewServer(addr string, handler *Handler, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		handler:  handler,
		addr:     addr,
		opts:     opts,
		logger:   logger.Named("rpc"),
		limiters: make(map[string]*rate.Limiter),
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", s.serveHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.rateLimit, s.authenticate).Post("/", s.serveRPC)
	s.router = r

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Router returns the HTTP handler, for mounting in tests.
func (s *Server) Router() http.Handler { return s.router }

// Start binds the port synchronously (so callers know immediately if binding
// fails) then serves requests in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop gracefully shuts down the HTTP server, waiting up to 5 seconds for
// in-flight requests to complete.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "height": s.handler.bc.Height()})
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1 MB to prevent memory exhaustion.
	r.Body = http.MaxBytesReader(w, r.Body, 1*1024*1024)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ObserveRPC("", err)
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	if req.JSONRPC != "2.0" {
		metrics.ObserveRPC(req.Method, errors.New("bad version"))
		writeJSON(w, errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be '2.0'"))
		return
	}

	resp := s.handler.Dispatch(req)
	var callErr error
	if resp.Error != nil {
		callErr = resp.Error
		s.logger.Debug("call failed", zap.String("method", req.Method),
			zap.Int("code", resp.Error.Code), zap.String("error", resp.Error.Message))
	}
	metrics.ObserveRPC(req.Method, callErr)
	writeJSON(w, resp)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AuthToken != "" && r.Header.Get("Authorization") != "Bearer "+s.opts.AuthToken {
			writeJSONStatus(w, http.StatusUnauthorized, errResponse(nil, CodeUnauthorized, "unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.RatePerSecond > 0 && !s.limiter(clientIP(r)).Allow() {
			metrics.RateLimited()
			writeJSONStatus(w, http.StatusTooManyRequests, errResponse(nil, CodeRateLimited, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiter(client string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[client]; ok {
		return l
	}
	if len(s.limiters) >= maxTrackedClients {
		s.limiters = make(map[string]*rate.Limiter)
	}
	burst := s.opts.Burst
	if burst <= 0 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(s.opts.RatePerSecond), burst)
	s.limiters[client] = l
	return l
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
