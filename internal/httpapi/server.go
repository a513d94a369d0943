// Package httpapi exposes the question-answering pipeline over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/docquery/docquery/internal/core"
	"github.com/docquery/docquery/internal/logger"
	"github.com/docquery/docquery/internal/qa"
)

// MaxQuestionsPerRequest caps how many questions one request may carry.
const MaxQuestionsPerRequest = 20

// Server routes API requests to the processor.
type Server struct {
	processor *qa.Processor
	authToken string
}

// NewServer creates the API server. When authToken is non-empty every request
// must carry it as a bearer token.
func NewServer(processor *qa.Processor, authToken string) *Server {
	return &Server{processor: processor, authToken: authToken}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/qa/run", s.handleRun)
	mux.HandleFunc("GET /api/v1/qa/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/qa/stats", s.handleStats)
	mux.HandleFunc("POST /api/v1/qa/clear-cache", s.handleClearCache)
	return s.withAuth(mux)
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token != s.authToken {
				writeError(w, http.StatusUnauthorized, "Invalid authentication token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req core.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Documents == "" {
		writeError(w, http.StatusBadRequest, "Document URL is required")
		return
	}
	if len(req.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "At least one question is required")
		return
	}
	if len(req.Questions) > MaxQuestionsPerRequest {
		writeError(w, http.StatusBadRequest, "Maximum 20 questions allowed per request")
		return
	}

	logger.Info("Processing request: %d questions against %s", len(req.Questions), req.Documents)
	start := time.Now()
	resp := s.processor.Process(r.Context(), req.Documents, req.Questions)
	logger.Info("Request completed in %.2fs", time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"system_stats": s.processor.Stats(r.Context()),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.processor.Stats(r.Context()))
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	cleared := s.processor.ClearCache()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "Cache cleared successfully",
		"cleared_items": cleared,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
