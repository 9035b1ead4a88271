package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"reelscope/config"
	"reelscope/model"
)

// PipelineRunner runs the full research pipeline for one task, writing
// progress to the registry as it goes, and returns the aggregated result.
type PipelineRunner interface {
	Run(ctx context.Context, t model.Task) (*model.Result, error)
}

// History persists a record of each completed run.
type History interface {
	Record(t model.Task) error
}

// Manager schedules one background pipeline run per submitted task and owns
// the retention cleanup of task records and downloaded artifacts.
type Manager struct {
	cfg            *config.Config
	registry       *Registry
	runner         PipelineRunner
	history        History // optional
	taskQueue      chan string
	concurrencySem chan struct{}
	cancels        sync.Map // task id -> context.CancelFunc
}

func NewManager(cfg *config.Config, registry *Registry, runner PipelineRunner, history History) (*Manager, error) {
	m := &Manager{
		cfg:            cfg,
		registry:       registry,
		runner:         runner,
		history:        history,
		taskQueue:      make(chan string, 100), // Buffered queue
		concurrencySem: make(chan struct{}, cfg.MaxConcurrency),
	}
	return m, nil
}

func (m *Manager) Registry() *Registry { return m.registry }

func (m *Manager) Start(ctx context.Context) {
	log.WithField("concurrency", m.cfg.MaxConcurrency).Info("task manager started")
	go m.cleanupLoop(ctx)
	go m.workerLoop(ctx)
}

// workerLoop pulls task ids from the queue and processes them
func (m *Manager) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info("worker loop shutting down")
			return
		case id := <-m.taskQueue:
			// Wait for a free processing slot
			m.concurrencySem <- struct{}{}
			go func(id string) {
				defer func() { <-m.concurrencySem }() // Release slot
				m.processTask(ctx, id)
			}(id)
		}
	}
}

// processTask drives the pipeline for a single task id.
func (m *Manager) processTask(parentCtx context.Context, id string) {
	t, err := m.registry.Get(id)
	if err != nil {
		log.WithField("task", id).Warn("queued task vanished before processing")
		return
	}
	// Cancelled while still in the queue.
	if t.Status.Terminal() {
		log.WithField("task", id).Debug("task terminal before processing, skipping")
		return
	}

	taskCtx, cancel := context.WithTimeout(parentCtx, m.cfg.TaskTimeout)
	m.cancels.Store(id, cancel)
	defer func() {
		m.cancels.Delete(id)
		cancel()
	}()

	if err := m.registry.Start(id); err != nil {
		return
	}
	log.WithField("task", id).Info("processing task")

	res, err := m.runner.Run(taskCtx, t)
	switch {
	case err == nil:
		if cErr := m.registry.Complete(id, res); cErr != nil {
			log.WithField("task", id).WithError(cErr).Warn("could not complete task")
			return
		}
		log.WithField("task", id).Info("task completed")
		m.record(id)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		log.WithField("task", id).Info("task cancelled or timed out")
		m.registry.Fail(id, "task was cancelled or timed out")
	default:
		log.WithField("task", id).WithError(err).Warn("task failed")
		m.registry.Fail(id, err.Error())
	}
}

func (m *Manager) record(id string) {
	if m.history == nil {
		return
	}
	t, err := m.registry.Get(id)
	if err != nil {
		return
	}
	if err := m.history.Record(t); err != nil {
		log.WithField("task", id).WithError(err).Warn("could not record history entry")
	}
}

// cleanupLoop periodically removes expired video artifacts and evicts the
// terminal task records that owned them.
func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ArtifactTTL / 4) // Check 4 times per lifetime
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("cleanup loop shutting down")
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

// sweepExpired removes video artifacts whose retention window has passed and
// evicts the terminal task records that owned them. Running and queued tasks
// are never touched.
func (m *Manager) sweepExpired() {
	for _, t := range m.registry.List() {
		if !t.Status.Terminal() || time.Since(t.CompletedAt) < m.cfg.ArtifactTTL {
			continue
		}
		if t.Result != nil && t.Result.Video != nil && t.Result.Video.Path != "" {
			log.WithField("path", t.Result.Video.Path).Info("cleaning up expired video artifact")
			os.Remove(t.Result.Video.Path)
		}
		m.registry.Delete(t.ID)
	}
}

// Submit accepts a research request, registers a queued task for it and
// schedules the pipeline run. The returned snapshot carries the task id the
// client polls with.
func (m *Manager) Submit(req model.Request) (model.Task, error) {
	t := m.registry.Create(req)

	select {
	case m.taskQueue <- t.ID:
	default:
		m.registry.Delete(t.ID)
		return model.Task{}, fmt.Errorf("task queue is full")
	}

	log.WithField("task", t.ID).Info("task submitted to queue")
	return t, nil
}

func (m *Manager) Get(id string) (model.Task, error) {
	return m.registry.Get(id)
}

func (m *Manager) List() []model.Task {
	return m.registry.List()
}

// Cancel requests cooperative cancellation. Queued tasks are failed in
// place; running tasks get their context cancelled, which the orchestrator
// observes between stages.
func (m *Manager) Cancel(id string) error {
	t, err := m.registry.Get(id)
	if err != nil {
		return err
	}

	switch {
	case t.Status.Terminal():
		return fmt.Errorf("cannot cancel task in state: %s", t.Status)
	case t.Status == model.StatusQueued:
		m.registry.Fail(id, "cancelled by user while in queue")
		log.WithField("task", id).Info("queued task cancelled")
	default:
		if c, ok := m.cancels.Load(id); ok {
			c.(context.CancelFunc)()
			log.WithField("task", id).Info("cancellation signal sent to running task")
		} else {
			return fmt.Errorf("task %s is running but has no cancellation handle", id)
		}
	}
	return nil
}

// VideoPath resolves a served video filename inside the download directory.
func (m *Manager) VideoPath(filename string) (string, error) {
	// Security: Prevent path traversal
	cleanFilename := filepath.Base(filename)
	if cleanFilename != filename {
		return "", fmt.Errorf("invalid filename")
	}

	fullPath := filepath.Join(m.cfg.DownloadDir, cleanFilename)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return "", fmt.Errorf("file not found")
	}
	return fullPath, nil
}
