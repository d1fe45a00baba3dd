package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/services"
	"github.com/SAP-F-2025/assessment-session-service/internal/utils"
	"github.com/SAP-F-2025/assessment-session-service/pkg/monitoring"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	AllowJump     bool
	MaxChunkBytes int64
	Auth          TokenParser
}

type HandlerManager struct {
	sessionHandler *SessionHandler
	exportHandler  *ExportHandler
	health         Pinger
	cfg            RouterConfig
}

func NewHandlerManager(
	sessionService services.SessionService,
	exportService services.ExportService,
	health Pinger,
	cfg RouterConfig,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(sessionService, cfg.MaxChunkBytes, logger),
		exportHandler:  NewExportHandler(exportService, logger),
		health:         health,
		cfg:            cfg,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.HealthCheck)
	router.GET("/metrics", monitoring.PrometheusHandler())

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(hm.cfg.Auth))
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("/:attempt_id", hm.sessionHandler.GetSession)
			sessions.PUT("/:attempt_id/answers/:question_id", hm.sessionHandler.SetAnswer)

			// Navigation
			sessions.POST("/:attempt_id/next", hm.sessionHandler.Next)
			sessions.POST("/:attempt_id/previous", hm.sessionHandler.Previous)
			if hm.cfg.AllowJump {
				sessions.POST("/:attempt_id/jump/:index", hm.sessionHandler.JumpTo)
			}
			sessions.POST("/:attempt_id/complete", hm.sessionHandler.Complete)
			sessions.POST("/:attempt_id/save-exit", hm.sessionHandler.SaveAndExit)

			// Media capture
			sessions.POST("/:attempt_id/devices", hm.sessionHandler.ReportDevices)
			sessions.POST("/:attempt_id/stream", hm.sessionHandler.AcquireStream)

			recording := sessions.Group("/:attempt_id/recording")
			{
				recording.POST("/start", hm.sessionHandler.Record(services.RecordingStart))
				recording.POST("/pause", hm.sessionHandler.Record(services.RecordingPause))
				recording.POST("/resume", hm.sessionHandler.Record(services.RecordingResume))
				recording.POST("/stop", hm.sessionHandler.Record(services.RecordingStop))
				recording.POST("/discard", hm.sessionHandler.Record(services.RecordingDiscard))
				recording.POST("/fail", hm.sessionHandler.FailRecording)
				recording.POST("/chunks", hm.sessionHandler.AppendChunk)
				recording.POST("/upload", hm.sessionHandler.UploadRecording)
			}
		}

		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:attempt_id/export", hm.exportHandler.ExportAttempt)
		}
	}
}

// HealthCheck reports database reachability.
func (hm *HandlerManager) HealthCheck(c *gin.Context) {
	if hm.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := hm.health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "assessment-session-service",
				"error":   err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "assessment-session-service",
	})
}
