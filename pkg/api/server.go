// Package api serves the filesystem and its health over HTTP.
package api

import (
	"context"
	"encoding/json"
	stderr "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/webvfs/internal/filesystem"
	"github.com/objectfs/webvfs/internal/vfs"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/health"
	"github.com/objectfs/webvfs/pkg/utils"
)

// Server provides the filesystem API and health endpoints
type Server struct {
	httpServer    *http.Server
	fs            filesystem.FilesystemInterface
	healthTracker *health.Tracker
	config        ServerConfig
	logger        *zap.Logger
}

// ServerConfig configures the API server
type ServerConfig struct {
	// Enabled starts the server with the engine
	Enabled bool `yaml:"enabled" split_words:"true"`

	// Address to bind the server to (e.g., "localhost:8080")
	Address string `yaml:"address"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `yaml:"read_timeout" split_words:"true"`

	// WriteTimeout is the maximum duration for writing the response
	WriteTimeout time.Duration `yaml:"write_timeout" split_words:"true"`

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration `yaml:"idle_timeout" split_words:"true"`

	// MaxBodySize caps request bodies; zero means unlimited
	MaxBodySize int64 `yaml:"max_body_size" split_words:"true"`

	// EnableCORS enables Cross-Origin Resource Sharing
	EnableCORS bool `yaml:"enable_cors" split_words:"true"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:      false,
		Address:      "localhost:8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodySize:  16 << 20,
		EnableCORS:   true,
	}
}

// NewServer creates a new API server over fs. A nil healthTracker reports
// healthy.
func NewServer(config ServerConfig, fs filesystem.FilesystemInterface, healthTracker *health.Tracker, logger *zap.Logger) *Server {
	s := &Server{
		fs:            fs,
		healthTracker: healthTracker,
		config:        config,
		logger:        utils.OrNop(logger).Named("api"),
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/components", s.handleHealthComponents)
	mux.HandleFunc("GET /health/live", s.handleLiveness)
	mux.HandleFunc("GET /health/ready", s.handleReadiness)

	// Filesystem endpoints
	mux.HandleFunc("GET /fs/{path...}", s.handleRead)
	mux.HandleFunc("PUT /fs/{path...}", s.handleWrite)
	mux.HandleFunc("POST /fs/{path...}", s.handleAction)
	mux.HandleFunc("DELETE /fs/{path...}", s.handleDelete)
	mux.HandleFunc("GET /du/{path...}", s.handleDirectoryInfo)
	mux.HandleFunc("GET /complete", s.handleComplete)

	// Info endpoint
	mux.HandleFunc("GET /info", s.handleInfo)

	handler := s.loggingMiddleware(mux)
	if config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}

	s.httpServer = &http.Server{
		Addr:              config.Address,
		Handler:           handler,
		ReadHeaderTimeout: config.ReadTimeout,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("API server listening", zap.String("address", s.config.Address))
	return s.httpServer.ListenAndServe()
}

// StartBackground starts the server in a background goroutine
func (s *Server) StartBackground() {
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Health endpoint handlers

func (s *Server) overallHealth() health.HealthState {
	if s.healthTracker == nil {
		return health.StateHealthy
	}
	return s.healthTracker.GetOverallHealth()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	overallHealth := s.overallHealth()

	statusCode := http.StatusOK
	if overallHealth == health.StateUnavailable {
		statusCode = http.StatusServiceUnavailable
	}
	s.respondJSON(w, statusCode, map[string]interface{}{
		"status":    overallHealth.String(),
		"timestamp": time.Now(),
	})
}

func (s *Server) handleHealthComponents(w http.ResponseWriter, r *http.Request) {
	if s.healthTracker == nil {
		s.respondJSON(w, http.StatusOK, []health.ComponentHealth{})
		return
	}
	s.respondJSON(w, http.StatusOK, s.healthTracker.GetAllComponents())
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	_, usageErr := s.fs.Usage()
	overallHealth := s.overallHealth()
	ready := usageErr == nil && overallHealth != health.StateUnavailable

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	s.respondJSON(w, statusCode, map[string]interface{}{
		"ready":     ready,
		"status":    overallHealth.String(),
		"timestamp": time.Now(),
	})
}

// Filesystem endpoint handlers

// target returns the absolute path named by the request's {path} wildcard.
func (s *Server) target(r *http.Request) (string, error) {
	return s.fs.ResolveAndValidatePath("/", "/"+r.PathValue("path"))
}

// handleRead serves file content, or a JSON listing for directories.
// ?stat=true returns metadata instead.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	p, err := s.target(r)
	if err != nil {
		s.respondFSError(w, err)
		return
	}
	ctx := r.Context()

	info, err := s.fs.Stat(ctx, p)
	if err != nil {
		s.respondFSError(w, err)
		return
	}
	if flag(r, "stat") {
		s.respondJSON(w, http.StatusOK, info)
		return
	}
	if info.IsDir() {
		entries, err := s.fs.ReadDir(ctx, p)
		if err != nil {
			s.respondFSError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, entries)
		return
	}

	data, err := s.fs.ReadFile(ctx, p)
	if err != nil {
		s.respondFSError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Last-Modified", info.Modified.UTC().Format(http.TimeFormat))
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("response write failed", zap.String("path", p), zap.Error(err))
	}
}

// handleWrite replaces the file with the request body, or appends to it
// with ?append=true.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	p, err := s.target(r)
	if err != nil {
		s.respondFSError(w, err)
		return
	}
	body := r.Body
	if s.config.MaxBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderr.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if flag(r, "append") {
		err = s.fs.AppendFile(r.Context(), p, data)
	} else {
		err = s.fs.WriteFile(r.Context(), p, data)
	}
	if err != nil {
		s.respondFSError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAction runs the operation named by ?op: mkdir, touch, move, rename
// or copy.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	p, err := s.target(r)
	if err != nil {
		s.respondFSError(w, err)
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	op := q.Get("op")
	if (op == "move" || op == "copy") && q.Get("to") == "" {
		s.respondError(w, http.StatusBadRequest, op+" requires a to parameter")
		return
	}

	switch op {
	case "mkdir":
		err = s.fs.Mkdir(ctx, p, vfs.MkdirOptions{Recursive: flag(r, "recursive")})
	case "touch":
		err = s.fs.TouchFile(ctx, p)
	case "move":
		var to string
		if to, err = s.fs.ResolveAndValidatePath("/", q.Get("to")); err == nil {
			err = s.fs.Move(ctx, p, to)
		}
	case "rename":
		err = s.fs.Rename(ctx, p, q.Get("name"))
	case "copy":
		var to string
		if to, err = s.fs.ResolveAndValidatePath("/", q.Get("to")); err == nil {
			err = s.fs.Copy(ctx, p, to, vfs.CopyOptions{Recursive: flag(r, "recursive")})
		}
	default:
		s.respondError(w, http.StatusBadRequest, "unknown op: "+op)
		return
	}
	if err != nil {
		s.respondFSError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, err := s.target(r)
	if err != nil {
		s.respondFSError(w, err)
		return
	}
	if err := s.fs.Delete(r.Context(), p, vfs.DeleteOptions{Recursive: flag(r, "recursive")}); err != nil {
		s.respondFSError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDirectoryInfo(w http.ResponseWriter, r *http.Request) {
	p, err := s.target(r)
	if err != nil {
		s.respondFSError(w, err)
		return
	}
	info, err := s.fs.GetDirectoryInfo(r.Context(), p)
	if err != nil {
		s.respondFSError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

// handleComplete returns completions for ?partial relative to ?cwd.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cwd := q.Get("cwd")
	if cwd == "" {
		cwd = s.fs.HomeDir()
	}
	completions, err := s.fs.GetPathCompletions(r.Context(), cwd, q.Get("partial"))
	if err != nil {
		s.respondFSError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, completions)
}

// Info endpoint

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"service":   "webvfs",
		"home":      s.fs.HomeDir(),
		"timestamp": time.Now(),
		"endpoints": []string{
			"/health",
			"/health/components",
			"/health/live",
			"/health/ready",
			"/fs/{path}",
			"/du/{path}",
			"/complete",
			"/info",
		},
	}
	if usage, err := s.fs.Usage(); err == nil {
		info["usage"] = usage
	}
	s.respondJSON(w, http.StatusOK, info)
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Helper methods

func flag(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// statusFor maps engine error codes to HTTP status codes.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeExists, errors.ErrCodeDirectoryNotEmpty:
		return http.StatusConflict
	case errors.ErrCodePathInvalid, errors.ErrCodeNotDirectory,
		errors.ErrCodeIsDirectory, errors.ErrCodeInvalidMove:
		return http.StatusBadRequest
	case errors.ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case errors.ErrCodeQuotaExceeded:
		return http.StatusInsufficientStorage
	case errors.ErrCodeNotInitialized:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFSError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondJSON(w, status, map[string]interface{}{
		"error":     err.Error(),
		"code":      code,
		"timestamp": time.Now(),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("encoding JSON response failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now(),
	})
}
