// Package api is the HTTP surface of the daemon and a small client for it.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vibe-assist/vibe-assist/internal/analysis"
	"github.com/vibe-assist/vibe-assist/internal/scheduler"
	"github.com/vibe-assist/vibe-assist/internal/types"
	"go.uber.org/zap"
)

const (
	// DefaultMaxBodyBytes limits JSON request bodies
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultMaxUploadBytes limits the oracle screenshot upload
	DefaultMaxUploadBytes int64 = 20 << 20
	// DefaultReadTimeout guards hung clients
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout covers a full reasoning call on the oracle route
	DefaultWriteTimeout = 3 * time.Minute
	// DefaultIdleTimeout bounds keep-alive connections
	DefaultIdleTimeout = 60 * time.Second
)

// Service is what the handlers read and write through
type Service interface {
	Snapshot() types.Snapshot
	SubmitFeedback(index int, action types.FeedbackAction, note string) (types.Snapshot, error)
	ClearIssues() types.Snapshot
	ForceRecalculate() types.Snapshot
	ReasoningReady() bool
	GeneratePrompt(ctx context.Context, goal string, screenshot []byte) (string, error)
	InitializeContext(ctx context.Context) (*analysis.ContextResult, error)
	Stats() scheduler.Stats
}

// Settings captures HTTP server configuration
type Settings struct {
	Addr           string
	AllowedOrigins []string
	MaxBodyBytes   int64
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.MaxUploadBytes <= 0 {
		s.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	return s
}

// Server wraps the HTTP listener and handlers
type Server struct {
	svc      Service
	settings Settings
	logger   *zap.Logger
	handler  http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer prepares a server for svc; call Start to listen
func NewServer(svc Service, settings Settings, logger *zap.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, settings: settings.withDefaults(), logger: logger}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the routed handler with CORS and request logging
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("POST /feedback", s.handleFeedback)
	mux.HandleFunc("POST /issues/clear", s.handleClear)
	mux.HandleFunc("POST /state/recalculate", s.handleRecalculate)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /oracle/generate_prompt", s.handleGeneratePrompt)
	mux.HandleFunc("POST /context/initialize", s.handleInitializeContext)
	return s.logRequests(cors(s.settings.AllowedOrigins, mux))
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("api server already started")
	}
	listener, err := net.Listen("tcp", s.settings.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.settings.Addr, err)
	}

	server := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.listener = listener
	s.server = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("api server listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	return err
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// logRequests records every request at debug level
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("api request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
