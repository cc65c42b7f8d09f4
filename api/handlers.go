package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/malbeclabs/sportsql/agent/pkg/pipeline"
	"github.com/malbeclabs/sportsql/agent/pkg/viz"
	"github.com/malbeclabs/sportsql/pkg/refresh"
	"github.com/malbeclabs/sportsql/pkg/store"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// requestID tags every request with a UUID, reusing a well-formed incoming
// X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("api: health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if !decode(w, r, &req) {
		return
	}
	if err := req.Normalize(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := s.log.With("request_id", requestIDFrom(r.Context()), "mode", req.Mode)
	log.Info("api: question received", "question", req.Question)

	var (
		resp any
		err  error
	)
	switch req.Mode {
	case pipeline.ModeDeep:
		resp, err = s.answerer.Deep(r.Context(), req)
	default:
		resp, err = s.answerer.Direct(r.Context(), req)
	}
	if err != nil {
		s.fail(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type visualizeRequest struct {
	Question string          `json:"question"`
	Data     store.ResultSet `json:"data"`
}

type visualizeResponse struct {
	PlotPath string `json:"plot_path,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	var req visualizeRequest
	if !decode(w, r, &req) {
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if len(req.Data.Headers) == 0 {
		writeError(w, http.StatusBadRequest, "data.headers is required")
		return
	}
	for _, row := range req.Data.Rows {
		if len(row) != len(req.Data.Headers) {
			writeError(w, http.StatusBadRequest, "every row must have one value per header")
			return
		}
	}

	log := s.log.With("request_id", requestIDFrom(r.Context()))
	plotPath, err := s.answerer.Visualize(r.Context(), req.Question, req.Data)
	if errors.Is(err, viz.ErrNoVisualization) {
		writeJSON(w, http.StatusOK, visualizeResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.fail(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, visualizeResponse{PlotPath: plotPath})
}

func (s *Server) handleRefreshStart(w http.ResponseWriter, r *http.Request) {
	err := s.refresher.Start(s.ctx)
	if errors.Is(err, refresh.ErrRefreshInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.refresher.Status())
}

// handlePlots serves rendered chart specs. Only regular files directly under
// the plots directory are exposed.
func (s *Server) handlePlots(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	full := filepath.Join(s.plotsDir, name)
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, full)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
