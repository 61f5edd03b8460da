package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/himpower2025/eps-topik-mate/internal/services"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
)

// ErrorResponse is the error envelope returned by every handler.
type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse wraps list responses with pagination metadata.
type SuccessResponse struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total,omitempty"`
}

// BaseHandler carries the logger and shared error mapping.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs the start of handler work with the request-scoped
// logger.
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.FromContext(c.Request.Context(), h.logger).Info(msg, args...)
}

// handleServiceError maps service errors to HTTP status codes.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrPaymentNotFound),
		errors.Is(err, services.ErrIdentityNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})

	case services.IsPermissionError(err):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: "access denied"})

	case errors.Is(err, services.ErrSessionAlreadyFinalized),
		errors.Is(err, services.ErrActiveSessionExists),
		errors.Is(err, services.ErrSyncInFlight),
		errors.Is(err, services.ErrPaymentNotPending),
		errors.Is(err, services.ErrStaleMediaEpoch):
		c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error()})

	case errors.Is(err, services.ErrSessionNotActive),
		errors.Is(err, services.ErrAudioNotUnlocked),
		errors.Is(err, services.ErrInvalidQuestionIndex),
		errors.Is(err, services.ErrInvalidOptionIndex):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})

	case errors.Is(err, services.ErrNoExamsRemaining):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{Message: err.Error()})

	case errors.Is(err, services.ErrMediaNotReady):
		c.JSON(http.StatusAccepted, ErrorResponse{Message: err.Error()})

	case errors.Is(err, services.ErrQuestionSetUnavailable),
		errors.Is(err, services.ErrFeedbackUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Message: err.Error()})

	default:
		utils.FromContext(c.Request.Context(), h.logger).Error("unhandled service error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
	}
}
