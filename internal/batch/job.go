package batch

import (
	"context"
	"sync"
	"time"
)

// Job is a batch execution started by the Orchestrator.
type Job struct {
	Operation string
	RunID     string
	Name      string
	StartedAt time.Time

	ctrl *Controller
	done chan struct{}

	mu       sync.Mutex
	progress ProgressEvent
	report   Report
	finished bool
}

func newJob(op, runID, name string) *Job {
	return &Job{
		Operation: op,
		RunID:     runID,
		Name:      name,
		StartedAt: time.Now().UTC(),
		ctrl:      &Controller{},
		done:      make(chan struct{}),
		progress:  ProgressEvent{Operation: op, RunID: runID},
	}
}

// Controller returns the pause/cancel handle of the job.
func (j *Job) Controller() *Controller { return j.ctrl }

// Done is closed once the job has finished and its Report is available.
func (j *Job) Done() <-chan struct{} { return j.done }

// Report returns the final tally; ok is false while the job runs.
func (j *Job) Report() (Report, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.report, j.finished
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (Report, error) {
	select {
	case <-j.done:
		r, _ := j.Report()
		return r, nil
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// Progress returns the latest progress snapshot.
func (j *Job) Progress() ProgressEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.progress
	p.Paused = j.ctrl.Paused()
	return p
}

// Running reports whether the job has not finished yet.
func (j *Job) Running() bool {
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

func (j *Job) setProgress(p ProgressEvent) {
	j.mu.Lock()
	j.progress = p
	j.mu.Unlock()
}

func (j *Job) finish(r Report) {
	j.mu.Lock()
	j.report = r
	j.finished = true
	j.mu.Unlock()
	close(j.done)
}
