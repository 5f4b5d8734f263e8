package api

import (
	"alcyxob/session-tracker/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes wires the session endpoints. Tokens are issued by the
// external auth service; every session route requires one.
func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	sessionService service.SessionService,
) {
	sessionHandler := NewSessionHandler(sessionService)
	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		sessionGroup := protected.Group("/sessions")
		{
			// POST /api/v1/sessions - start a new session (409 + existing on conflict)
			sessionGroup.POST("", sessionHandler.StartSession)
			// GET /api/v1/sessions - the caller's in-progress session, if any
			sessionGroup.GET("", sessionHandler.GetActiveSession)
			// GET /api/v1/sessions/{id}
			sessionGroup.GET("/:id", sessionHandler.GetSession)
			// PATCH /api/v1/sessions/{id}/status - validated transition with pause accounting
			sessionGroup.PATCH("/:id/status", sessionHandler.UpdateStatus)
			// POST /api/v1/sessions/{id}/checkpoints - server-timestamped snapshot
			sessionGroup.POST("/:id/checkpoints", sessionHandler.AddCheckpoint)
			// POST /api/v1/sessions/{id}/finish - finalize into a workout record
			sessionGroup.POST("/:id/finish", sessionHandler.FinishSession)
			// GET /api/v1/sessions/{id}/export - presigned checkpoint-archive link
			sessionGroup.GET("/:id/export", sessionHandler.ExportSession)
		}
	}
}
