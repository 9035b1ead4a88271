package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"reelscope/config"
	"reelscope/media"
	"reelscope/model"
	"reelscope/platform"
	"reelscope/store"
	"reelscope/task"
)

type Handler struct {
	taskManager  *task.Manager
	history      *store.Store
	cfg          *config.Config
	pollInterval time.Duration // SSE tick, shortened in tests
}

func NewHandler(tm *task.Manager, history *store.Store, cfg *config.Config) *Handler {
	return &Handler{
		taskManager:  tm,
		history:      history,
		cfg:          cfg,
		pollInterval: time.Second,
	}
}

type TaskRequest struct {
	URL           string `json:"url" binding:"required"`
	ModelSize     string `json:"model_size"`
	Language      string `json:"language"`
	InstaUsername string `json:"insta_username"`
	InstaPassword string `json:"insta_password"`
	MaxComments   int    `json:"max_comments"`
	CookiesFile   string `json:"cookies_file"`
}

// handleCreateTask accepts a research submission and schedules it.
func (h *Handler) handleCreateTask(c *gin.Context) {
	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cleaned := platform.CleanURL(req.URL)
	if _, err := url.ParseRequestURI(cleaned); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid URL: %v", err)})
		return
	}
	if !media.ValidModelSize(req.ModelSize) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown model size: %s", req.ModelSize)})
		return
	}

	t, err := h.taskManager.Submit(model.Request{
		URL:           cleaned,
		ModelSize:     req.ModelSize,
		Language:      req.Language,
		InstaUsername: req.InstaUsername,
		InstaPassword: req.InstaPassword,
		MaxComments:   req.MaxComments,
		CookiesFile:   req.CookiesFile,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"taskId": t.ID})
}

// handleListTasks lists all known tasks.
func (h *Handler) handleListTasks(c *gin.Context) {
	tasks := h.taskManager.List()
	for i := range tasks {
		tasks[i] = h.withVideoURL(c, tasks[i])
	}
	c.JSON(http.StatusOK, tasks)
}

// withVideoURL attaches the served URL of a completed task's video without
// mutating the registry's shared result.
func (h *Handler) withVideoURL(c *gin.Context, t model.Task) model.Task {
	if t.Status != model.StatusComplete || t.Result == nil || t.Result.Video == nil || t.Result.Video.Path == "" {
		return t
	}

	baseURL := h.cfg.BaseURL
	if baseURL == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	res := *t.Result
	video := *res.Video
	video.VideoURL = fmt.Sprintf("%s/api/v1/videos/%s", baseURL, filepath.Base(video.Path))
	res.Video = &video
	t.Result = &res
	return t
}

// handleGetTaskStatus returns a snapshot of a single task.
func (h *Handler) handleGetTaskStatus(c *gin.Context) {
	t, err := h.taskManager.Get(c.Param("taskId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, h.withVideoURL(c, t))
}

// handleCancelTask requests cooperative cancellation of a task.
func (h *Handler) handleCancelTask(c *gin.Context) {
	if err := h.taskManager.Cancel(c.Param("taskId")); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task cancellation requested"})
}

// handleStreamTask pushes progress events over SSE until the task is
// terminal. Same state machine as polling, different presentation.
func (h *Handler) handleStreamTask(c *gin.Context) {
	id := c.Param("taskId")
	if _, err := h.taskManager.Get(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		t, err := h.taskManager.Get(id)
		if err != nil {
			// Evicted mid-stream.
			c.SSEvent("error", gin.H{"error": "Task not found"})
			c.Writer.Flush()
			return
		}

		switch t.Status {
		case model.StatusComplete:
			c.SSEvent("result", h.withVideoURL(c, t))
			c.Writer.Flush()
			return
		case model.StatusError:
			c.SSEvent("error", gin.H{"error": t.Error, "progress": t.Progress})
			c.Writer.Flush()
			return
		default:
			c.SSEvent("progress", gin.H{
				"status":   t.Status,
				"step":     t.Step,
				"progress": t.Progress,
				"message":  t.Message,
			})
			c.Writer.Flush()
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// handleGetVideo serves a downloaded video artifact.
func (h *Handler) handleGetVideo(c *gin.Context) {
	filePath, err := h.taskManager.VideoPath(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.File(filePath)
}

// handleListHistory returns all recorded research runs.
func (h *Handler) handleListHistory(c *gin.Context) {
	entries, err := h.history.List()
	if err != nil {
		log.WithError(err).Warn("history listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load history"})
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

// handleWeeklyHistory groups recorded runs by ISO week.
func (h *Handler) handleWeeklyHistory(c *gin.Context) {
	weekly, err := h.history.ListByWeek()
	if err != nil {
		log.WithError(err).Warn("weekly history listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load history"})
		return
	}
	c.JSON(http.StatusOK, weekly)
}

// handleDeleteHistory removes one recorded run.
func (h *Handler) handleDeleteHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid history id"})
		return
	}
	if err := h.history.Delete(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "History entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not delete history entry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "History entry deleted"})
}

// handleListModels exposes the accepted transcription model sizes.
func (h *Handler) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": media.ModelSizes, "default": h.cfg.DefaultModel})
}
