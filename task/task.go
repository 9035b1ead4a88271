package task

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"reelscope/model"
)

var (
	ErrNotFound        = errors.New("task not found")
	ErrAlreadyTerminal = errors.New("task already terminal")
)

// Registry is the process-wide task table. It supports one writer (the
// orchestrator owning a task) plus arbitrarily many concurrent readers;
// reads return snapshots and never observe a half-written record.
// Mutations on terminal tasks are rejected with ErrAlreadyTerminal.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*model.Task)}
}

// Create inserts a new queued task for the given request and returns a
// snapshot of it.
func (r *Registry) Create(req model.Request) model.Task {
	t := &model.Task{
		ID:        fmt.Sprintf("%s_%d", shortuuid.New(), time.Now().Unix()),
		Status:    model.StatusQueued,
		Progress:  0,
		CreatedAt: time.Now(),
		Request:   req,
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()
	return *t
}

// Start transitions a queued task to running.
func (r *Registry) Start(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	t.Status = model.StatusRunning
	t.StartedAt = time.Now()
	return nil
}

// Update overwrites the mutable progress fields of a running task. Progress
// is monotonic: a value lower than the current one is kept at the current
// value, so pollers never observe a task moving backwards.
func (r *Registry) Update(id string, step model.Step, progress int, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	t.Step = step
	if progress > t.Progress {
		if progress > 100 {
			progress = 100
		}
		t.Progress = progress
	}
	t.Message = message
	return nil
}

// Complete transitions the task to its complete terminal state and attaches
// the aggregated result.
func (r *Registry) Complete(id string, res *model.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	t.Status = model.StatusComplete
	t.Step = model.StepDone
	t.Progress = 100
	t.Message = "Done"
	t.Result = res
	t.Error = ""
	t.CompletedAt = time.Now()
	return nil
}

// Fail transitions the task to its error terminal state. Progress is left
// at its last reported value and no partial result is attached.
func (r *Registry) Fail(id string, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	t.Status = model.StatusError
	t.Error = message
	t.Result = nil
	t.CompletedAt = time.Now()
	return nil
}

// Get returns a read-only snapshot of the task.
func (r *Registry) Get(id string) (model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, ErrNotFound
	}
	// The Result pointer is shared, but a result is only ever attached once
	// and never mutated afterwards, so the snapshot stays consistent.
	return *t, nil
}

// List returns snapshots of every known task.
func (r *Registry) List() []model.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, *t)
	}
	return out
}

// Delete evicts a task record. Used by the retention cleanup only.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
}
