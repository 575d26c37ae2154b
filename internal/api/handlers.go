package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/jarscout/internal/workqueue"
)

const (
	defaultClassLimit = 200
	maxClassLimit     = 5000
)

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Subscribers:   s.events.Subscribers(),
	})
}

// handleCreateScan handles POST /scans.
func (s *Server) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scanning is disabled")
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Root = strings.TrimSpace(req.Root)
	if req.Root == "" {
		s.writeError(w, http.StatusBadRequest, "root is required")
		return
	}

	item, err := s.scanner.Scan(req.Root)
	if errors.Is(err, workqueue.ErrStopped) {
		s.writeError(w, http.StatusServiceUnavailable, "scanner is shutting down")
		return
	}
	if err != nil {
		s.logger.Error("failed to queue scan", "root", req.Root, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to queue scan")
		return
	}

	respondJSON(w, http.StatusAccepted, ScanResponse{ItemID: item.ID, Root: req.Root, Status: "queued"})
}

// handleListScans handles GET /scans.
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.catalog.Scans(r.Context())
	if err != nil {
		s.logger.Error("failed to list scans", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	respondJSON(w, http.StatusOK, ScansResponse{Scans: scans})
}

// handleListArchives handles GET /archives?scan=<id>.
func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	archives, err := s.catalog.Archives(r.Context(), r.URL.Query().Get("scan"))
	if err != nil {
		s.logger.Error("failed to list archives", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}
	respondJSON(w, http.StatusOK, ArchivesResponse{Archives: archives})
}

// handleListFailures handles GET /failures?scan=<id>.
func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := s.catalog.Failures(r.Context(), r.URL.Query().Get("scan"))
	if err != nil {
		s.logger.Error("failed to list failures", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list failures")
		return
	}
	respondJSON(w, http.StatusOK, FailuresResponse{Failures: failures})
}

// handleFindClasses handles GET /classes?q=<substring>&limit=<n>.
func (s *Server) handleFindClasses(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := defaultClassLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxClassLimit)
	}

	matches, err := s.catalog.FindClasses(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("failed to find classes", "query", query, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to find classes")
		return
	}
	respondJSON(w, http.StatusOK, ClassesResponse{Query: query, Classes: matches})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
