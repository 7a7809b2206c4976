package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cardgen-go/internal/monitoring"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrTaskRunning is returned by Start when a task with the same name is
	// still running.
	ErrTaskRunning = errors.New("task already running")
	// ErrTaskNotFound is returned for names the manager has no record of.
	ErrTaskNotFound = errors.New("task not found")
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusStopped  TaskStatus = "stopped"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusCanceled TaskStatus = "canceled"
)

// TaskFunc is the body of a background task. It must return once ctx is done.
type TaskFunc func(ctx context.Context) error

// Task is a point-in-time view of a background task.
type Task struct {
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
	Error       string     `json:"error,omitempty"`
}

type taskEntry struct {
	Task
	cancel context.CancelFunc
	done   chan struct{}
}

// TaskManager runs named background tasks such as batch runs and periodic
// housekeeping. At most one task per name runs at a time; the record of a
// finished task stays until pruned and its name may be reused.
type TaskManager struct {
	mu     sync.RWMutex
	tasks  map[string]*taskEntry
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// NewTaskManager returns a manager whose tasks are cancelled with ctx.
func NewTaskManager(ctx context.Context) *TaskManager {
	ctx, cancel := context.WithCancel(ctx)
	return &TaskManager{
		tasks:  make(map[string]*taskEntry),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// KindOf returns the part of a task name before the first colon,
// e.g. "batch" for "batch:translation".
func KindOf(name string) string {
	if i := strings.IndexByte(name, ':'); i > 0 {
		return name[:i]
	}
	return name
}

// Start runs fn in a new goroutine under name.
func (tm *TaskManager) Start(name, description string, fn TaskFunc) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if prev, ok := tm.tasks[name]; ok && prev.Status == TaskStatusRunning {
		return fmt.Errorf("task %s: %w", name, ErrTaskRunning)
	}
	if err := tm.ctx.Err(); err != nil {
		return fmt.Errorf("task manager stopped: %w", err)
	}

	taskCtx, taskCancel := context.WithCancel(tm.ctx)
	entry := &taskEntry{
		Task: Task{
			Name:        name,
			Kind:        KindOf(name),
			Description: description,
			Status:      TaskStatusRunning,
			StartTime:   tm.now(),
		},
		cancel: taskCancel,
		done:   make(chan struct{}),
	}
	tm.tasks[name] = entry
	monitoring.BackgroundTasksRunning.WithLabelValues(entry.Kind).Inc()

	tm.wg.Add(1)
	go tm.run(taskCtx, entry, fn)
	return nil
}

func (tm *TaskManager) run(ctx context.Context, entry *taskEntry, fn TaskFunc) {
	defer tm.wg.Done()
	defer close(entry.done)
	defer entry.cancel()

	fields := log.Fields{"task": entry.Name, "kind": entry.Kind}
	log.WithFields(fields).WithField("description", entry.Description).Debug("task started")

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(fields).WithField("panic", r).Error("task panicked")
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = fn(ctx)
	}()

	tm.mu.Lock()
	end := tm.now()
	entry.EndTime = &end
	switch {
	case err != nil && ctx.Err() != nil:
		entry.Status = TaskStatusCanceled
	case err != nil:
		entry.Status = TaskStatusFailed
		entry.Error = err.Error()
	default:
		entry.Status = TaskStatusStopped
	}
	status := entry.Status
	tm.mu.Unlock()

	monitoring.BackgroundTasksRunning.WithLabelValues(entry.Kind).Dec()
	monitoring.BackgroundTasksTotal.WithLabelValues(entry.Kind, string(status)).Inc()
	if status == TaskStatusFailed {
		log.WithFields(fields).WithError(err).Error("task failed")
		return
	}
	log.WithFields(fields).WithField("status", status).Debug("task finished")
}

// Stop cancels the context of a running task. It does not wait for it.
func (tm *TaskManager) Stop(name string) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	entry, ok := tm.tasks[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrTaskNotFound)
	}
	if entry.Status != TaskStatusRunning {
		return fmt.Errorf("task %s is %s", name, entry.Status)
	}
	entry.cancel()
	return nil
}

// Done returns a channel closed when the named task returns.
func (tm *TaskManager) Done(name string) (<-chan struct{}, error) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	entry, ok := tm.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrTaskNotFound)
	}
	return entry.done, nil
}

// Get returns a snapshot of the named task.
func (tm *TaskManager) Get(name string) (Task, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	entry, ok := tm.tasks[name]
	if !ok {
		return Task{}, false
	}
	return tm.snapshotLocked(entry), true
}

// ListTasks returns snapshots of every task, newest first.
func (tm *TaskManager) ListTasks() []Task {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	out := make([]Task, 0, len(tm.tasks))
	for _, entry := range tm.tasks {
		out = append(out, tm.snapshotLocked(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

func (tm *TaskManager) snapshotLocked(entry *taskEntry) Task {
	t := entry.Task
	end := tm.now()
	if t.EndTime != nil {
		e := *t.EndTime
		t.EndTime = &e
		end = e
	}
	t.DurationMS = end.Sub(t.StartTime).Milliseconds()
	return t
}

// Prune forgets finished tasks that ended before cutoff.
func (tm *TaskManager) Prune(cutoff time.Time) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	n := 0
	for name, entry := range tm.tasks {
		if entry.Status != TaskStatusRunning && entry.EndTime != nil && entry.EndTime.Before(cutoff) {
			delete(tm.tasks, name)
			n++
		}
	}
	return n
}

// TaskStats counts tasks by status.
type TaskStats struct {
	Total    int `json:"total"`
	Running  int `json:"running"`
	Stopped  int `json:"stopped"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
}

// GetStats counts the tasks currently on record.
func (tm *TaskManager) GetStats() TaskStats {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	stats := TaskStats{Total: len(tm.tasks)}
	for _, entry := range tm.tasks {
		switch entry.Status {
		case TaskStatusRunning:
			stats.Running++
		case TaskStatusStopped:
			stats.Stopped++
		case TaskStatusFailed:
			stats.Failed++
		case TaskStatusCanceled:
			stats.Canceled++
		}
	}
	return stats
}

// StopAll cancels every task and refuses new ones.
func (tm *TaskManager) StopAll() {
	tm.cancel()
}

// Wait blocks until every task has returned or ctx is done.
func (tm *TaskManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown is StopAll followed by Wait.
func (tm *TaskManager) Shutdown(ctx context.Context) error {
	tm.StopAll()
	return tm.Wait(ctx)
}

// StartPeriodic runs fn immediately and then every interval until stopped.
// Failures of a single tick are logged and do not end the task.
func (tm *TaskManager) StartPeriodic(name, description string, interval time.Duration, fn TaskFunc) error {
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	return tm.Start(name, description, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		tick := func() {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				log.WithField("task", name).WithError(err).Warn("periodic task tick failed")
			}
		}
		tick()
		for {
			select {
			case <-ticker.C:
				tick()
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
