package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/himpower2025/eps-topik-mate/internal/services"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
)

type ProfileHandler struct {
	BaseHandler
	profileSyncService services.ProfileSyncService
	exportService      services.ExportService
}

func NewProfileHandler(
	profileSyncService services.ProfileSyncService,
	exportService services.ExportService,
	logger utils.Logger,
) *ProfileHandler {
	return &ProfileHandler{
		BaseHandler:        NewBaseHandler(logger),
		profileSyncService: profileSyncService,
		exportService:      exportService,
	}
}

// SyncProfile reconciles the authenticated identity with the profile
// store. Called by the client after every sign-in.
func (h *ProfileHandler) SyncProfile(c *gin.Context) {
	h.LogRequest(c, "Syncing profile")

	identity, err := GetIdentityFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	profile, err := h.profileSyncService.Sync(c.Request.Context(), identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// GetProfile returns the caller's profile.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	profile, err := h.profileSyncService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// ExportHistory streams the caller's exam history as an xlsx download.
func (h *ProfileHandler) ExportHistory(c *gin.Context) {
	h.LogRequest(c, "Exporting exam history")

	userID, err := GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	result, err := h.exportService.ExportSessions(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		result.Data)
}
