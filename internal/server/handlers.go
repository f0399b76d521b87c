package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"resume-rag/internal/models"
)

const maxRequestBytes = 1 << 20

type ChatRequest struct {
	Question string `json:"question"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/chat", s.requireMethod(http.MethodPost, s.chatHandler))
	mux.HandleFunc("/healthz", s.requireMethod(http.MethodGet, s.healthHandler))

	return mux
}

func (s *Server) requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		next(w, r)
	}
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.app.RAG.Ask(r.Context(), req.Question)
	if err != nil {
		status := statusFor(err)
		logger.Error().Err(err).Int("status", status).Msg("Failed to answer question")
		writeError(w, status, errorMessage(status))
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Answer: answer})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Chunks: s.app.Index.Count()})
}

// statusFor maps provider failures to 502 and everything else to 500.
func statusFor(err error) int {
	if errors.Is(err, models.ErrEmbedding) || errors.Is(err, models.ErrLLM) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorMessage is the client-facing text for a failed question; details stay in the log.
func errorMessage(status int) string {
	if status == http.StatusBadGateway {
		return "the language model provider is unavailable, please try again later"
	}
	return "failed to answer the question"
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}
