// Package server exposes the analysis and decision surface over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"advisor/internal/decision"
	"advisor/internal/logging"
	"advisor/internal/types"
)

// maxListLimit caps the ?limit parameter on list endpoints.
const maxListLimit = 50

const defaultListLimit = 10

// Store is the read surface the handlers need.
type Store interface {
	GetAnalysis(id string) (*types.Analysis, error)
	ListAnalyses(agentID string, limit int) ([]*types.Analysis, error)
	ListActions(analysisID string) ([]*types.Recommendation, error)
	GetAction(id string) (*types.Recommendation, error)
}

// Runner starts one analysis run. POST /analysis fires it in the background.
type Runner interface {
	Run(ctx context.Context, agentID string) (*types.Analysis, error)
}

// Decider applies a decision batch.
type Decider interface {
	Process(ctx context.Context, decisions []types.Decision) decision.Outcome
}

// Options configure the listener. Zero timeouts mean no limit.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server wires the HTTP surface. One agent per deployment; requests may
// override the agent with the X-Agent-ID header.
type Server struct {
	store   Store
	runner  Runner
	decider Decider
	agentID string
	logger  *zap.Logger
	opts    Options
}

func New(store Store, runner Runner, decider Decider, agentID string, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:   store,
		runner:  runner,
		decider: decider,
		agentID: agentID,
		logger:  logger,
		opts:    opts,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /analysis", s.handleListAnalyses)
	mux.HandleFunc("POST /analysis", s.handleStartRun)
	mux.HandleFunc("GET /analysis/{id}", s.handleGetAnalysis)
	mux.HandleFunc("GET /analysis/{id}/actions", s.handleListActions)
	mux.HandleFunc("GET /action/{id}", s.handleGetAction)
	mux.HandleFunc("POST /actions/decide", s.handleDecide)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.withRequestLog(mux)
}

// ListenAndServe runs the server until ctx is cancelled, then drains with
// the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.opts.Addr))
		logging.Server("Listening on %s", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ServerError("Server exited: %v", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownTimeout := s.opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ServerError("Shutdown failed: %v", err)
		return err
	}
	return nil
}

// agentFrom resolves the calling agent: header override, else the configured
// deployment agent.
func (s *Server) agentFrom(r *http.Request) string {
	if agent := r.Header.Get("X-Agent-ID"); agent != "" {
		return agent
	}
	return s.agentID
}

// statusRecorder captures the status code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
		logging.API("%s %s -> %d (%v)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
