package api

import (
	"github.com/gin-gonic/gin"

	"reelscope/config"
	"reelscope/store"
	"reelscope/task"
)

func SetupRouter(tm *task.Manager, history *store.Store, cfg *config.Config) *gin.Engine {
	r := gin.Default()
	h := NewHandler(tm, history, cfg)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		v1.GET("/models", h.handleListModels)

		// Async research task endpoints
		v1.POST("/tasks", h.handleCreateTask)
		v1.GET("/tasks", h.handleListTasks)
		v1.GET("/tasks/:taskId", h.handleGetTaskStatus)
		v1.GET("/tasks/:taskId/events", h.handleStreamTask)
		v1.PATCH("/tasks/:taskId/cancel", h.handleCancelTask)

		// Downloaded video artifacts
		v1.GET("/videos/:filename", h.handleGetVideo)

		// Persisted research history
		v1.GET("/history", h.handleListHistory)
		v1.GET("/history/weekly", h.handleWeeklyHistory)
		v1.DELETE("/history/:id", h.handleDeleteHistory)
	}
	return r
}
