package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/postlsh/internal/kv"
	"github.com/hyperjump/postlsh/internal/vector"
	"go.uber.org/zap"
)

type setKeyRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		s.respondError(w, badRequest("invalid key"))
		return
	}
	value, err := s.store.Get(r.Context(), key)
	if errors.Is(err, kv.ErrNotFound) {
		s.respondError(w, &apiError{status: http.StatusNotFound, msg: "Key not found: " + key})
		return
	}
	if err != nil {
		s.respondError(w, fmt.Errorf("get %s: %w", key, err))
		return
	}
	s.respondJSON(w, http.StatusOK, value)
}

func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	var req setKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, badRequest("invalid request body"))
		return
	}
	if req.Key == "" {
		s.respondError(w, badRequest("Key cannot be empty"))
		return
	}
	s.logger.Debug("set key request", zap.String("key", req.Key))
	if err := s.store.Set(r.Context(), req.Key, req.Value); err != nil {
		s.respondError(w, fmt.Errorf("set %s: %w", req.Key, err))
		return
	}
	s.respondJSON(w, http.StatusOK, "Value set")
}

func (s *Server) handleAddVectors(w http.ResponseWriter, r *http.Request) {
	var raws []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raws); err != nil {
		s.respondError(w, badRequest("invalid request body"))
		return
	}
	vecs := make([][]float32, len(raws))
	for i, raw := range raws {
		v, err := vector.Parse(raw)
		if err != nil {
			s.respondError(w, badRequest(fmt.Sprintf("vector %d: %v", i, err)))
			return
		}
		vecs[i] = v
	}
	s.logger.Debug("add vectors request", zap.Int("count", len(vecs)))
	if err := s.index.StoreVecs(vecs); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, "Vectors added")
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	n, err := parseNResults(r.URL.Query())
	if err != nil {
		s.respondError(w, err)
		return
	}
	var postIDs []uint32
	if err := json.NewDecoder(r.Body).Decode(&postIDs); err != nil {
		s.respondError(w, badRequest("invalid request body"))
		return
	}
	s.logger.Debug("query request", zap.Int("posts", len(postIDs)), zap.Int("n_results", n))
	results, err := s.engine.Similar(r.Context(), postIDs, n)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.index.Stats())
}

func parseNResults(q url.Values) (int, error) {
	raw := q.Get("n_results")
	if raw == "" {
		return 0, badRequest("n_results is required")
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("n_results must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes err as a JSON string body.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	ae := toAPIError(err)
	if ae.status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", ae.status), zap.Error(err))
	}
	s.respondJSON(w, ae.status, ae.msg)
}
