package api

import (
	"errors"
	"net/http"

	"tripledger/internal/domain"
	"tripledger/internal/logger"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error   string `json:"error" example:"something went wrong"`
	Details any    `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Store  string `json:"store,omitempty" example:"ok"`
	Redis  string `json:"redis,omitempty" example:"ok"`
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPolicyOverride),
		errors.Is(err, domain.ErrReversalMismatch),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRetriesExhausted),
		errors.Is(err, domain.ErrAllocationConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err with the details a client can act on. Internal
// failures are logged and answered with a generic message.
func WriteError(c *gin.Context, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var verr *domain.ValidationError
	var perr *domain.PolicyError
	switch {
	case errors.As(err, &verr):
		resp = ErrorResponse{Error: domain.ErrValidation.Error(), Details: verr.Fields}
	case errors.As(err, &perr):
		resp = ErrorResponse{Error: domain.ErrPolicyOverride.Error(), Details: perr.Warnings}
	case status == http.StatusInternalServerError:
		logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		resp = ErrorResponse{Error: "internal error"}
	}

	c.JSON(status, resp)
}
