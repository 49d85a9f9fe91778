package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kapu/pitch-coach-go/internal/orchestrator"
	"github.com/kapu/pitch-coach-go/internal/service/llm"
	apperrors "github.com/kapu/pitch-coach-go/pkg/errors"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrSessionBusy),
		errors.Is(err, orchestrator.ErrSessionEnded),
		errors.Is(err, orchestrator.ErrStaleSession):
		return http.StatusConflict
	}
	return apperrors.HTTPStatus(err, http.StatusInternalServerError)
}

func codeFor(err error) string {
	var validation *apperrors.ValidationError
	if errors.As(err, &validation) {
		return validation.Code
	}
	var parse *apperrors.ParseError
	if errors.As(err, &parse) {
		return parse.Code
	}
	var service *apperrors.ServiceError
	if errors.As(err, &service) {
		return service.Code
	}
	var app *apperrors.AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return ""
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && codeFor(err) == "" {
		msg = "internal server error"
	}
	_ = c.Error(err)
	c.JSON(status, errorResponse{Error: msg, Code: codeFor(err)})
}

// chatError picks the status and user-facing text for a failed chat proxy call.
func chatError(err error) (int, string) {
	switch {
	case llm.IsRateLimit(err):
		return http.StatusTooManyRequests, "Rate limit exceeded. Please try again in a moment."
	case llm.IsAuthFailure(err):
		return http.StatusInternalServerError, "API authentication failed. Please check configuration."
	case llm.IsBadRequest(err):
		return http.StatusBadRequest, "Invalid request to the language model. Please check your input."
	default:
		return http.StatusInternalServerError, "Failed to generate AI response. Please try again."
	}
}
