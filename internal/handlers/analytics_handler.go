package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/himpower2025/eps-topik-mate/internal/services"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
)

type AnalyticsHandler struct {
	BaseHandler
	analyticsService services.AnalyticsService
}

func NewAnalyticsHandler(analyticsService services.AnalyticsService, logger utils.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		BaseHandler:      NewBaseHandler(logger),
		analyticsService: analyticsService,
	}
}

// GetSessionFeedback generates study feedback for a finished session.
func (h *AnalyticsHandler) GetSessionFeedback(c *gin.Context) {
	h.LogRequest(c, "Generating session feedback", "session_id", c.Param("id"))

	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	feedback, err := h.analyticsService.GenerateFeedback(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, feedback)
}
