package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/docgenius/internal/embedding"
	"github.com/hyperjump/docgenius/internal/indexer"
	"github.com/hyperjump/docgenius/internal/ingest"
	"github.com/hyperjump/docgenius/internal/llm"
	"github.com/hyperjump/docgenius/internal/models"
	"github.com/hyperjump/docgenius/internal/session"
	"github.com/hyperjump/docgenius/internal/storage"
	"github.com/hyperjump/docgenius/internal/vector"
)

type ctxKey struct{}

type sessionResponse struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Version uint64 `json:"version"`
	Chunks  int    `json:"chunks"`
	Turns   int    `json:"turns"`
}

type indexRequest struct {
	Folder string   `json:"folder"`
	URLs   []string `json:"urls"`
}

type indexResponse struct {
	Report indexer.BuildReport `json:"report"`
	Event  session.Event       `json:"event"`
}

type chatResponse struct {
	Answer  string                 `json:"answer"`
	Sources []string               `json:"sources"`
	Context models.RetrievalResult `json:"context"`
	Event   session.Event          `json:"event"`
}

func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			s.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(ctxKey{}).(*session.Session)
}

func describe(sess *session.Session) sessionResponse {
	return sessionResponse{
		ID:      sess.ID(),
		State:   sess.State().String(),
		Version: sess.Version(),
		Chunks:  sess.Snapshot().Size(),
		Turns:   len(sess.Transcript()),
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	s.logger.Debug("session created", zap.String("id", sess.ID()))
	s.respondJSON(w, http.StatusCreated, describe(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, describe(sessionFrom(r)))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Delete(sessionFrom(r).ID())
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleBuildIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeOptional(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	src := ingest.Sources{Folder: req.Folder, URLs: req.URLs}
	if src.Empty() {
		src.Folder = s.config.Storage.SourceDir
	}
	sess := sessionFrom(r)
	s.logger.Debug("build index request", zap.String("session", sess.ID()), zap.String("folder", src.Folder), zap.Int("urls", len(src.URLs)))
	report, ev, err := sess.Build(r.Context(), src)
	if err != nil {
		s.respondFailure(w, "build index", err)
		return
	}
	s.respondJSON(w, http.StatusOK, indexResponse{Report: report, Event: ev})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var q models.ChatQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := q.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ans, ev, err := sessionFrom(r).AskK(r.Context(), q.Query, q.TopK)
	if err != nil {
		s.respondFailure(w, "chat", err)
		return
	}
	s.respondJSON(w, http.StatusOK, chatResponse{Answer: ans.Text, Sources: ans.Sources, Context: ans.Context, Event: ev})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var q models.ChatQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := q.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	retriever := sessionFrom(r).Retriever()
	k := q.TopK
	if k == 0 {
		k = retriever.TopK()
	}
	res, err := retriever.Retrieve(r.Context(), q.Query, k)
	if err != nil {
		s.respondFailure(w, "retrieve", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": res})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns := sessionFrom(r).Transcript()
	if turns == nil {
		turns = []models.Turn{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	ev := sessionFrom(r).ClearHistory()
	s.respondJSON(w, http.StatusOK, map[string]any{"event": ev})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"sessions":        s.sessions.Count(),
		"faiss_available": vector.IsFAISSAvailable(),
	}
	if base := s.sessions.Base(); base != nil {
		resp["base_index"] = base.Meta
	}
	resp["config"] = map[string]any{
		"embedding_provider": s.config.Embedding.Provider,
		"embedding_model":    s.config.Embedding.Model,
		"llm_provider":       s.config.LLM.Provider,
		"llm_model":          s.config.LLM.Model,
		"index_type":         s.config.Retrieval.IndexType,
		"retrieval_mode":     s.config.Retrieval.Mode,
		"top_k":              s.config.Retrieval.TopK,
		"chunk_size":         s.config.Chunking.ChunkSize,
		"chunk_overlap":      s.config.Chunking.OverlapOrDefault(),
		"index_dir":          s.config.Storage.IndexDir,
		"source_dir":         s.config.Storage.SourceDir,
	}
	if diskBytes, err := storage.DiskUsageBytes(s.config.Storage.IndexDir); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// decodeOptional decodes a JSON body; an empty body leaves v untouched.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps error classes to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrIndexUnavailable):
		return http.StatusConflict
	case errors.Is(err, llm.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, embedding.ErrEmbedding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vector.ErrInvalidK), errors.Is(err, vector.ErrDimensionMismatch), errors.Is(err, os.ErrNotExist):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
