package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vibe-assist/vibe-assist/internal/ai"
	"github.com/vibe-assist/vibe-assist/internal/scheduler"
	"github.com/vibe-assist/vibe-assist/internal/state"
	"github.com/vibe-assist/vibe-assist/internal/types"
	"go.uber.org/zap"
)

// FeedbackRequest is the body of POST /feedback
type FeedbackRequest struct {
	IssueIndex *int   `json:"issue_index"`
	Action     string `json:"action"`
	Note       string `json:"note,omitempty"`
}

// HealthResponse is the body of GET /health. GeminiInitialized mirrors
// ReasoningInitialized for dashboards that predate provider selection.
type HealthResponse struct {
	Status               string          `json:"status"`
	GeminiInitialized    bool            `json:"gemini_initialized"`
	ReasoningInitialized bool            `json:"reasoning_initialized"`
	Provider             string          `json:"provider,omitempty"`
	Scheduler            scheduler.Stats `json:"scheduler"`
}

// PromptResponse is the body of a successful POST /oracle/generate_prompt
type PromptResponse struct {
	Prompt string `json:"prompt"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if status, err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, status, err.Error())
		return
	}
	if req.IssueIndex == nil {
		writeError(w, http.StatusBadRequest, "issue_index is required")
		return
	}

	snap, err := s.svc.SubmitFeedback(*req.IssueIndex, types.FeedbackAction(req.Action), req.Note)
	switch {
	case errors.Is(err, state.ErrIndexOutOfRange), errors.Is(err, state.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ClearIssues())
}

func (s *Server) handleRecalculate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ForceRecalculate())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ready := s.svc.ReasoningReady()
	stats := s.svc.Stats()
	resp := HealthResponse{
		Status:               "healthy",
		GeminiInitialized:    ready,
		ReasoningInitialized: ready,
		Scheduler:            stats,
	}
	if stats.Reasoning != nil {
		resp.Provider = stats.Reasoning.Provider
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGeneratePrompt(w http.ResponseWriter, r *http.Request) {
	if !s.svc.ReasoningReady() {
		writeError(w, http.StatusServiceUnavailable, ai.ErrNotInitialized.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.settings.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.settings.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds limit")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with goal and screenshot")
		return
	}
	defer r.MultipartForm.RemoveAll()

	goal := strings.TrimSpace(r.FormValue("goal"))
	if goal == "" {
		writeError(w, http.StatusBadRequest, "goal is required")
		return
	}
	file, _, err := r.FormFile("screenshot")
	if err != nil {
		writeError(w, http.StatusBadRequest, "screenshot is required")
		return
	}
	defer file.Close()
	frame, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read screenshot")
		return
	}

	prompt, err := s.svc.GeneratePrompt(r.Context(), goal, frame)
	if err != nil {
		s.logger.Warn("oracle prompt generation failed", zap.String("goal", preview(goal)), zap.Error(err))
		writeError(w, reasoningStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PromptResponse{Prompt: prompt})
}

func (s *Server) handleInitializeContext(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.InitializeContext(r.Context())
	if err != nil {
		writeError(w, reasoningStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeJSON reads a bounded JSON body, rejecting unknown fields
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dest any) (int, error) {
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()

	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge, errors.New("payload exceeds limit")
		}
		return http.StatusBadRequest, errors.New("invalid JSON body")
	}
	return http.StatusOK, nil
}

// reasoningStatus maps a one-shot reasoning failure to a status code
func reasoningStatus(err error) int {
	if errors.Is(err, ai.ErrNotInitialized) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func preview(s string) string {
	const n = 50
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
