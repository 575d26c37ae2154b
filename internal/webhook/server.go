package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/jarscout/internal/workqueue"
)

// Server represents the webhook HTTP server.
type Server struct {
	config  Config
	scanner Scanner
	logger  *slog.Logger
	server  *http.Server

	// endpoints maps URL paths to their configurations
	endpoints map[string]*EndpointConfig
}

// New creates a new webhook server instance.
func New(config Config, scanner Scanner, logger *slog.Logger) *Server {
	endpoints := make(map[string]*EndpointConfig)
	for i := range config.Endpoints {
		ep := &config.Endpoints[i]

		if ep.MaxBodySize == 0 {
			ep.MaxBodySize = DefaultMaxBodySize
		}
		if ep.SignatureHeader == "" {
			ep.SignatureHeader = DefaultSignatureHeader
		}

		endpoints[ep.Path] = ep
	}

	return &Server{
		config:    config,
		scanner:   scanner,
		logger:    logger,
		endpoints: endpoints,
	}
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler { return s.setupRoutes() }

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "endpoints", len(s.endpoints))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	for path := range s.endpoints {
		r.Post(path, s.handleWebhook)
	}

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleWebhook handles incoming hook POST requests.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := s.endpoints[r.URL.Path]
	if !ok {
		s.respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, endpoint.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > endpoint.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	signature := r.Header.Get(endpoint.SignatureHeader)
	if signature == "" {
		s.logger.Warn("webhook signature missing", "path", r.URL.Path, "header", endpoint.SignatureHeader)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := verifyHMACSignature(body, signature, endpoint.Secret); err != nil {
		s.logger.Warn("webhook signature verification failed", "path", r.URL.Path, "error", err)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req TriggerRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	target, err := resolveTarget(endpoint.Root, req.Path)
	if err != nil {
		s.logger.Warn("webhook path rejected", "path", r.URL.Path, "target", req.Path, "error", err)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	info, err := os.Stat(target)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "target not found")
		return
	}
	if err := confineResolved(endpoint.Root, target); err != nil {
		s.logger.Warn("webhook path rejected", "path", r.URL.Path, "target", req.Path, "error", err)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	action := "scan"
	var item workqueue.Item
	if info.IsDir() {
		item, err = s.scanner.Scan(target)
	} else {
		action = "submit"
		item, err = s.scanner.Submit(target)
	}
	if err != nil {
		if errors.Is(err, workqueue.ErrStopped) {
			s.respondError(w, http.StatusServiceUnavailable, "scanner is stopping")
			return
		}
		s.logger.Error("failed to queue webhook target", "path", r.URL.Path, "target", target, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to queue target")
		return
	}

	s.logger.Info("webhook target queued", "path", r.URL.Path, "target", target, "action", action, "item_id", item.ID)
	s.respondJSON(w, http.StatusAccepted, TriggerResponse{ItemID: item.ID, Path: target, Action: action})
}

// resolveTarget joins a requested path onto root and rejects anything that
// escapes it. An empty request means root itself.
func resolveTarget(root, requested string) (string, error) {
	if requested == "" {
		return root, nil
	}
	target := requested
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	if !within(root, target) {
		return "", fmt.Errorf("%s is outside %s", requested, root)
	}
	return target, nil
}

// confineResolved repeats the containment check after following symlinks
// in both root and target, so a link inside root cannot point out of it.
func confineResolved(root, target string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("resolve root %s: %w", root, err)
	}
	realTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", target, err)
	}
	if !within(realRoot, realTarget) {
		return fmt.Errorf("%s resolves to %s, outside %s", target, realTarget, realRoot)
	}
	return nil
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
