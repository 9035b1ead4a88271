package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelscope/config"
	"reelscope/model"
	"reelscope/store"
	"reelscope/task"
)

type runnerFunc func(ctx context.Context, t model.Task) (*model.Result, error)

func (f runnerFunc) Run(ctx context.Context, t model.Task) (*model.Result, error) {
	return f(ctx, t)
}

func setupTestRouter(t *testing.T, runner task.PipelineRunner) (*gin.Engine, *config.Config, *task.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		MaxConcurrency: 1,
		TaskTimeout:    time.Minute,
		ArtifactTTL:    time.Hour,
		DownloadDir:    t.TempDir(),
		DefaultModel:   "base",
	}

	history, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	tm, err := task.NewManager(cfg, task.NewRegistry(), runner, history)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tm.Start(ctx)

	return SetupRouter(tm, history, cfg), cfg, tm
}

func waitForTerminal(t *testing.T, tm *task.Manager, id string) model.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := tm.Get(id)
		require.NoError(t, err)
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", id)
	return model.Task{}
}

func okRunner(res *model.Result) runnerFunc {
	return func(ctx context.Context, t model.Task) (*model.Result, error) {
		return res, nil
	}
}

func TestHandleCreateTask(t *testing.T) {
	router, _, tm := setupTestRouter(t, okRunner(&model.Result{Platform: "instagram"}))

	w := httptest.NewRecorder()
	reqBody := `{"url": "instagram.com/reel/ABC123xyz/", "model_size": "base"}`
	req, _ := http.NewRequest("POST", "/api/v1/tasks", bytes.NewBufferString(reqBody))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.NotEmpty(t, resp["taskId"])

	snap := waitForTerminal(t, tm, resp["taskId"])
	assert.Equal(t, model.StatusComplete, snap.Status)
	assert.Equal(t, 100, snap.Progress)
}

func TestHandleCreateTask_Rejections(t *testing.T) {
	router, _, _ := setupTestRouter(t, okRunner(nil))

	cases := []struct {
		name string
		body string
	}{
		{"missing url", `{"model_size": "base"}`},
		{"unparseable url", `{"url": "not a url"}`},
		{"unknown model size", `{"url": "https://youtube.com/watch?v=abc", "model_size": "enormous"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/api/v1/tasks", bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleGetTaskStatus(t *testing.T) {
	var cfg *config.Config
	runner := runnerFunc(func(ctx context.Context, tk model.Task) (*model.Result, error) {
		path := filepath.Join(cfg.DownloadDir, "video_abc.mp4")
		require.NoError(t, os.WriteFile(path, []byte("video bytes"), 0644))
		return &model.Result{
			Platform: "youtube",
			HasVideo: true,
			Video:    &model.VideoInfo{Path: path, Title: "Some Clip", Uploader: "someone"},
		}, nil
	})
	router, c, tm := setupTestRouter(t, runner)
	cfg = c

	created, err := tm.Submit(model.Request{URL: "https://youtube.com/watch?v=abc"})
	require.NoError(t, err)
	waitForTerminal(t, tm, created.ID)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/tasks/"+created.ID, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var respTask model.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &respTask))
	assert.Equal(t, created.ID, respTask.ID)
	assert.Equal(t, model.StatusComplete, respTask.Status)
	require.NotNil(t, respTask.Result)
	require.NotNil(t, respTask.Result.Video)
	assert.Contains(t, respTask.Result.Video.VideoURL, "/api/v1/videos/video_abc.mp4")

	// Attaching the URL must not leak into the stored result.
	stored, err := tm.Get(created.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Result.Video.VideoURL)

	// Not found
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/v1/tasks/nonexistent", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCancelTask(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	runner := runnerFunc(func(ctx context.Context, tk model.Task) (*model.Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
			return nil, fmt.Errorf("unexpected unblock")
		}
	})
	router, _, tm := setupTestRouter(t, runner)

	created, err := tm.Submit(model.Request{URL: "https://youtube.com/watch?v=abc"})
	require.NoError(t, err)

	// Let the worker pick it up before cancelling.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, _ := tm.Get(created.ID)
		if snap.Status == model.StatusRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PATCH", "/api/v1/tasks/"+created.ID+"/cancel", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	snap := waitForTerminal(t, tm, created.ID)
	assert.Equal(t, model.StatusError, snap.Status)
	assert.Contains(t, snap.Error, "cancelled")

	// A terminal task cannot be cancelled again.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("PATCH", "/api/v1/tasks/"+created.ID+"/cancel", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("PATCH", "/api/v1/tasks/nonexistent/cancel", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStreamTask(t *testing.T) {
	router, _, tm := setupTestRouter(t, okRunner(&model.Result{Platform: "tiktok"}))

	created, err := tm.Submit(model.Request{URL: "https://tiktok.com/@u/video/1"})
	require.NoError(t, err)
	waitForTerminal(t, tm, created.ID)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/tasks/"+created.ID+"/events", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event:result")
	assert.Contains(t, w.Body.String(), `"platform":"tiktok"`)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/v1/tasks/nonexistent/events", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStreamTask_Error(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, tk model.Task) (*model.Result, error) {
		return nil, fmt.Errorf("download failed: no formats found")
	})
	router, _, tm := setupTestRouter(t, runner)

	created, err := tm.Submit(model.Request{URL: "https://youtube.com/watch?v=abc"})
	require.NoError(t, err)
	waitForTerminal(t, tm, created.ID)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/tasks/"+created.ID+"/events", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event:error")
	assert.Contains(t, w.Body.String(), "download failed")
}

func TestHandleGetVideo(t *testing.T) {
	router, cfg, _ := setupTestRouter(t, okRunner(nil))

	path := filepath.Join(cfg.DownloadDir, "video_served.mp4")
	require.NoError(t, os.WriteFile(path, []byte("served bytes"), 0644))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/videos/video_served.mp4", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "served bytes", w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/v1/videos/missing.mp4", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	router, _, _ := setupTestRouter(t, okRunner(&model.Result{
		Platform:  "instagram",
		Video:     &model.VideoInfo{Title: "Reel", Uploader: "creator"},
		Instagram: &model.CommentSet{CommentCount: 12},
	}))

	w := httptest.NewRecorder()
	reqBody := `{"url": "https://instagram.com/reel/ABC123xyz/"}`
	req, _ := http.NewRequest("POST", "/api/v1/tasks", bytes.NewBufferString(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	// The history row is written right after completion; poll for it.
	var entries []store.Entry
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w = httptest.NewRecorder()
		req, _ = http.NewRequest("GET", "/api/v1/history", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
		if len(entries) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Len(t, entries, 1)
	assert.Equal(t, "Reel", entries[0].Title)
	assert.Equal(t, 12, entries[0].CommentCount)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/v1/history/weekly", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	var weekly map[string][]store.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &weekly))
	assert.Len(t, weekly, 1)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", fmt.Sprintf("/api/v1/history/%d", entries[0].ID), nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", fmt.Sprintf("/api/v1/history/%d", entries[0].ID), nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/api/v1/history/not-a-number", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListModels(t *testing.T) {
	router, _, _ := setupTestRouter(t, okRunner(nil))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/models", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "large-v3")
	assert.Contains(t, w.Body.String(), `"default":"base"`)
}

func TestAuthMiddleware(t *testing.T) {
	router, cfg, _ := setupTestRouter(t, okRunner(nil))

	t.Run("Auth disabled", func(t *testing.T) {
		cfg.AuthEnable = false
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/tasks", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Auth enabled, no token", func(t *testing.T) {
		cfg.AuthEnable = true
		cfg.AuthKey = "secret"
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/tasks", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Auth enabled, wrong token", func(t *testing.T) {
		cfg.AuthEnable = true
		cfg.AuthKey = "secret"
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/tasks", nil)
		req.Header.Set("Authorization", "Bearer wrong-key")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Auth enabled, correct token", func(t *testing.T) {
		cfg.AuthEnable = true
		cfg.AuthKey = "secret"
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/tasks", nil)
		req.Header.Set("Authorization", "Bearer secret")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
