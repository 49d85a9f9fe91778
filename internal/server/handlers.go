package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kapu/pitch-coach-go/internal/analyzer"
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/feedback"
	"github.com/kapu/pitch-coach-go/internal/persona"
	"github.com/kapu/pitch-coach-go/internal/service/llm"
	apperrors "github.com/kapu/pitch-coach-go/pkg/errors"
)

type messageRequest struct {
	Message string `json:"message"`
}

type startRequest struct {
	Persona string `json:"persona"`
	Pitch   string `json:"pitch"`
}

type feedbackExportRequest struct {
	Feedback  domain.FeedbackResult `json:"feedback"`
	Persona   string                `json:"persona"`
	CoachTone string                `json:"coachTone"`
}

type chatRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, apperrors.NewValidationError("invalid request body: "+err.Error(), "body", nil))
		return false
	}
	return true
}

func (s *Server) handlePersonas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"personas": persona.All()})
}

func (s *Server) handleTones(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tones": persona.Tones()})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req messageRequest
	if !bindJSON(c, &req) {
		return
	}
	c.JSON(http.StatusOK, analyzer.Analyze(req.Message))
}

func (s *Server) handleFeedback(c *gin.Context) {
	var req feedback.Request
	if !bindJSON(c, &req) {
		return
	}
	req.UserID = currentUser(c)

	res, err := s.deps.Feedback.Evaluate(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleFeedbackExport(c *gin.Context) {
	var req feedbackExportRequest
	if !bindJSON(c, &req) {
		return
	}

	text, err := s.formatter.FormatFeedback(req.Feedback, req.Persona, req.CoachTone)
	if err != nil {
		writeError(c, apperrors.NewAppError("export failed", apperrors.CodeAppError, http.StatusInternalServerError, nil).WithCause(err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="sales-feedback.txt"`)
	c.String(http.StatusOK, text)
}

// handleChat relays messages to the completion chain. A JSON reply is
// passed through untouched; anything else is wrapped as {content}.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := llm.ValidateMessages(req.Messages); err != nil {
		writeError(c, err)
		return
	}

	reply, err := s.deps.Completer.Complete(c.Request.Context(), req.Messages)
	if err != nil {
		status, msg := chatError(err)
		s.logger.Warn("Chat completion failed", zap.Int("status", status), zap.Error(err))
		_ = c.Error(err)
		c.JSON(status, errorResponse{Error: msg})
		return
	}

	trimmed := strings.TrimSpace(reply)
	if json.Valid([]byte(trimmed)) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(trimmed))
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": trimmed})
}

func (s *Server) handleHistory(c *gin.Context) {
	user := currentUser(c)
	if user == "" {
		writeError(c, apperrors.NewValidationError(headerUserID+" header is required", "userId", ""))
		return
	}
	if s.deps.History == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "pitch history is not configured"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	records, err := s.deps.History.ListByUser(c.Request.Context(), user, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []domain.PitchRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) handleStartSession(c *gin.Context) {
	var req startRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.deps.Orchestrator.Start(c.Request.Context(), currentUser(c), req.Persona, req.Pitch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handleGetSession(c *gin.Context) {
	state, err := s.deps.Orchestrator.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleTurn(c *gin.Context) {
	var req messageRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.deps.Orchestrator.HandleTurn(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleResetSession(c *gin.Context) {
	state, err := s.deps.Orchestrator.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if err := s.deps.Orchestrator.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleReport answers 409 while the session is live and 202 until the
// deferred report lands.
func (s *Server) handleReport(c *gin.Context) {
	state, err := s.deps.Orchestrator.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	switch {
	case state.Phase != domain.PhaseEnded:
		c.JSON(http.StatusConflict, errorResponse{Error: "session has not ended"})
	case state.Report == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "pending"})
	default:
		c.JSON(http.StatusOK, state.Report)
	}
}

func (s *Server) handleExport(c *gin.Context) {
	state, err := s.deps.Orchestrator.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	text, err := s.formatter.FormatSession(state)
	if err != nil {
		writeError(c, apperrors.NewAppError("export failed", apperrors.CodeAppError, http.StatusInternalServerError, nil).WithCause(err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="roleplay-`+state.ID+`.txt"`)
	c.String(http.StatusOK, text)
}
