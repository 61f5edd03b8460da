package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/himpower2025/eps-topik-mate/internal/config"
	"github.com/himpower2025/eps-topik-mate/internal/services"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
)

type HandlerManager struct {
	sessionHandler   *SessionHandler
	profileHandler   *ProfileHandler
	paymentHandler   *PaymentHandler
	analyticsHandler *AnalyticsHandler
	authMiddleware   *CasdoorAuthMiddleware
	serviceManager   services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler:   NewSessionHandler(serviceManager.SessionService(), serviceManager.MediaService(), logger),
		profileHandler:   NewProfileHandler(serviceManager.ProfileSyncService(), serviceManager.ExportService(), logger),
		paymentHandler:   NewPaymentHandler(serviceManager.PaymentService(), logger),
		analyticsHandler: NewAnalyticsHandler(serviceManager.AnalyticsService(), logger),
		authMiddleware:   NewCasdoorAuthMiddleware(casdoorConfig),
		serviceManager:   serviceManager,
	}
}

// SetupRoutes sets up all API routes.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.POST("/resume", hm.sessionHandler.ResumeSession)
			sessions.GET("", hm.sessionHandler.GetHistory)
			sessions.GET("/stats", hm.sessionHandler.GetStats)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.POST("/:id/answer", hm.sessionHandler.SelectAnswer)
			sessions.POST("/:id/navigate", hm.sessionHandler.Navigate)
			sessions.POST("/:id/unlock-audio", hm.sessionHandler.UnlockAudio)
			sessions.POST("/:id/submit", hm.sessionHandler.SubmitSession)
			sessions.POST("/:id/abandon", hm.sessionHandler.AbandonSession)
			sessions.GET("/:id/media", hm.sessionHandler.GetMedia)
			sessions.GET("/:id/feedback", hm.analyticsHandler.GetSessionFeedback)
		}

		profile := v1.Group("/profile")
		{
			profile.POST("/sync", hm.profileHandler.SyncProfile)
			profile.GET("/me", hm.profileHandler.GetProfile)
			profile.GET("/me/export", hm.profileHandler.ExportHistory)
		}

		payments := v1.Group("/payments")
		{
			payments.POST("", hm.paymentHandler.InitiatePayment)
			payments.POST("/:id/verify", hm.paymentHandler.VerifyPayment)
			payments.GET("", hm.paymentHandler.GetPaymentHistory)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "eps-topik-mate",
		})
	})
}
