package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cardgen-go/internal/credential"
	"cardgen-go/internal/events"
	"cardgen-go/internal/logging"
	"cardgen-go/internal/monitoring"
	"cardgen-go/internal/monitoring/tracing"
	"cardgen-go/internal/notes"
	"cardgen-go/internal/progress"
	"cardgen-go/internal/runtime"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultPauseSlice = 100 * time.Millisecond
	DefaultPaceSlice  = 500 * time.Millisecond
	// MaxSlice caps PauseSlice and PaceSlice so cancellation is observed
	// within half a second.
	MaxSlice = 500 * time.Millisecond
)

var (
	// ErrUnknownOperation is returned for an operation without a processor.
	ErrUnknownOperation = errors.New("unknown batch operation")
	// ErrNothingPending is returned when resuming a run with no pending items.
	ErrNothingPending = errors.New("run has no pending items")
	// ErrBusy is returned when the operation already has a running batch.
	ErrBusy = errors.New("a batch for this operation is already running")

	errMissingResult = errors.New("processor returned no result for item")
)

// Options configure an Orchestrator.
type Options struct {
	Notes     notes.Store
	Tasks     *runtime.TaskManager
	Publisher events.Publisher
	// PauseSlice and PaceSlice bound how long a paused or pacing run goes
	// without checking for cancellation. Both are capped at MaxSlice.
	PauseSlice time.Duration
	PaceSlice  time.Duration
}

type registration struct {
	proc    Processor
	tracker *progress.Tracker
	delay   time.Duration
}

// Orchestrator drives resumable batch runs: one background task per
// operation walks the pending items of a run, writes results to notes and
// records each outcome in the operation's progress tracker.
type Orchestrator struct {
	notes      notes.Store
	tasks      *runtime.TaskManager
	publisher  events.Publisher
	pauseSlice time.Duration
	paceSlice  time.Duration

	mu       sync.Mutex
	regs     map[string]registration
	jobs     map[string]*Job
	starting map[string]bool
}

// New builds an Orchestrator. Processors are added with Register.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		notes:      opts.Notes,
		tasks:      opts.Tasks,
		publisher:  opts.Publisher,
		pauseSlice: opts.PauseSlice,
		paceSlice:  opts.PaceSlice,
		regs:       make(map[string]registration),
		jobs:       make(map[string]*Job),
		starting:   make(map[string]bool),
	}
	if o.tasks == nil {
		o.tasks = runtime.NewTaskManager(context.Background())
	}
	if o.pauseSlice <= 0 {
		o.pauseSlice = DefaultPauseSlice
	}
	if o.paceSlice <= 0 {
		o.paceSlice = DefaultPaceSlice
	}
	o.pauseSlice = min(o.pauseSlice, MaxSlice)
	o.paceSlice = min(o.paceSlice, MaxSlice)
	return o
}

// Register binds p to its progress tracker. delay is the pause between
// consecutive groups of items.
func (o *Orchestrator) Register(p Processor, tracker *progress.Tracker, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.regs[p.Operation()] = registration{proc: p, tracker: tracker, delay: delay}
}

// Operations lists the registered operation tags.
func (o *Orchestrator) Operations() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ops := make([]string, 0, len(o.regs))
	for op := range o.regs {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Tracker returns the progress tracker of op.
func (o *Orchestrator) Tracker(op string) (*progress.Tracker, bool) {
	reg, err := o.registration(op)
	if err != nil {
		return nil, false
	}
	return reg.tracker, true
}

func (o *Orchestrator) registration(op string) (registration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	reg, ok := o.regs[op]
	if !ok {
		return registration{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	return reg, nil
}

// Start records a new run over itemIDs and processes it in the background.
// An empty runID gets a generated one.
func (o *Orchestrator) Start(op, runID, name string, itemIDs []string) (*Job, error) {
	reg, err := o.registration(op)
	if err != nil {
		return nil, err
	}
	release, err := o.reserve(op)
	if err != nil {
		return nil, err
	}
	defer release()
	if runID == "" {
		runID = uuid.NewString()
	}
	reg.tracker.StartRun(runID, name, itemIDs)
	return o.launch(op, runID, name, reg)
}

// StartDeck starts a run over every note of deck, keyed by the deck name so
// an interrupted run can be resumed by deck.
func (o *Orchestrator) StartDeck(ctx context.Context, op, deck string) (*Job, error) {
	ids, err := o.notes.NoteIDs(ctx, deck)
	if err != nil {
		return nil, fmt.Errorf("list notes of %q: %w", deck, err)
	}
	return o.Start(op, deck, deck, ids)
}

// Resume re-drives runID from its persisted pending list. Items whose notes
// no longer exist are dropped first.
func (o *Orchestrator) Resume(ctx context.Context, op, runID string) (*Job, error) {
	reg, err := o.registration(op)
	if err != nil {
		return nil, err
	}
	release, err := o.reserve(op)
	if err != nil {
		return nil, err
	}
	defer release()
	return o.resume(ctx, op, runID, reg)
}

// RetryFailures moves the failed items of runID back to pending and resumes it.
func (o *Orchestrator) RetryFailures(ctx context.Context, op, runID string) (*Job, error) {
	reg, err := o.registration(op)
	if err != nil {
		return nil, err
	}
	release, err := o.reserve(op)
	if err != nil {
		return nil, err
	}
	defer release()
	reg.tracker.ResetFailuresToPending(runID)
	return o.resume(ctx, op, runID, reg)
}

func (o *Orchestrator) resume(ctx context.Context, op, runID string, reg registration) (*Job, error) {
	if !reg.tracker.HasPendingRun(runID) {
		return nil, ErrNothingPending
	}
	if ids, err := o.notes.NoteIDs(ctx, ""); err != nil {
		logging.WithRun(op, runID).WithError(err).Warn("listing notes before resume failed; keeping pending items")
	} else {
		reg.tracker.ClearMissing(runID, ids)
		if !reg.tracker.HasPendingRun(runID) {
			reg.tracker.ClearRun(runID)
			return nil, ErrNothingPending
		}
	}
	name := runID
	if s, ok := reg.tracker.DescribeRun(runID); ok && s.Name != "" {
		name = s.Name
	}
	return o.launch(op, runID, name, reg)
}

// reserve claims op for a caller about to touch its progress and launch a
// job. The returned release must be called once the job is launched or the
// attempt abandoned.
func (o *Orchestrator) reserve(op string) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.starting[op] {
		return nil, ErrBusy
	}
	if j, ok := o.jobs[op]; ok && j.Running() {
		return nil, ErrBusy
	}
	o.starting[op] = true
	return func() {
		o.mu.Lock()
		delete(o.starting, op)
		o.mu.Unlock()
	}, nil
}

// Job returns the latest job of op.
func (o *Orchestrator) Job(op string) (*Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[op]
	return j, ok
}

// Jobs returns the latest job of every operation that has run.
func (o *Orchestrator) Jobs() []*Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Operation < out[k].Operation })
	return out
}

func taskName(op string) string { return "batch:" + op }

func (o *Orchestrator) launch(op, runID, name string, reg registration) (*Job, error) {
	job := newJob(op, runID, name)
	start := func() error {
		return o.tasks.Start(taskName(op), fmt.Sprintf("%s batch %s", op, runID), func(ctx context.Context) error {
			o.run(ctx, job, reg)
			return nil
		})
	}
	err := start()
	if errors.Is(err, runtime.ErrTaskRunning) {
		// The previous job may have reported but not yet returned.
		if prev, ok := o.Job(op); ok && !prev.Running() {
			if done, derr := o.tasks.Done(taskName(op)); derr == nil {
				<-done
				err = start()
			}
		}
	}
	if err != nil {
		if errors.Is(err, runtime.ErrTaskRunning) {
			return nil, ErrBusy
		}
		return nil, err
	}
	o.mu.Lock()
	o.jobs[op] = job
	o.mu.Unlock()
	return job, nil
}

func (o *Orchestrator) run(ctx context.Context, job *Job, reg registration) {
	ctx, span := tracing.StartSpan(ctx, "batch", "Orchestrator.run")
	span.SetAttributes(attribute.String("batch.operation", job.Operation), attribute.String("batch.run_id", job.RunID))
	defer span.End()

	entry := logging.WithRun(job.Operation, job.RunID)
	ids := reg.tracker.Pending(job.RunID)
	rep := Report{
		Operation: job.Operation,
		RunID:     job.RunID,
		Name:      job.Name,
		Total:     len(ids),
		Failures:  make(map[string]string),
		StartedAt: job.StartedAt,
	}
	active := monitoring.BatchRunsActive.WithLabelValues(job.Operation)
	active.Inc()
	defer active.Dec()
	entry.WithField("items", len(ids)).Info("batch run started")

	size := reg.proc.BatchSize()
	if size < 1 {
		size = 1
	}
	for start := 0; start < len(ids); start += size {
		if job.ctrl.Cancelled() || ctx.Err() != nil {
			rep.Cancelled = true
			break
		}
		if !o.waitWhilePaused(ctx, job.ctrl) {
			rep.Cancelled = true
			break
		}

		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		results := reg.proc.Process(ctx, chunk)
		for i, id := range chunk {
			r := Result{Err: errMissingResult}
			if i < len(results) {
				r = results[i]
			}
			if r.Err != nil && ctx.Err() != nil && errors.Is(r.Err, ctx.Err()) {
				// interrupted by shutdown; the item stays pending for resume
				rep.Cancelled = true
				continue
			}
			o.settle(ctx, job, reg.tracker, id, r, &rep)
		}
		o.reportProgress(job, &rep)
		if rep.Cancelled {
			break
		}
		if end < len(ids) && !o.pace(ctx, job.ctrl, reg.delay) {
			rep.Cancelled = true
			break
		}
	}

	if !rep.Cancelled {
		reg.tracker.ClearRun(job.RunID)
	}
	rep.FinishedAt = time.Now().UTC()

	outcome := "completed"
	if rep.Cancelled {
		outcome = "cancelled"
	}
	monitoring.BatchRunsTotal.WithLabelValues(job.Operation, outcome).Inc()
	span.SetAttributes(attribute.Int("batch.succeeded", rep.Succeeded), attribute.Int("batch.failed", rep.Failed))
	entry.WithFields(log.Fields{
		"succeeded": rep.Succeeded,
		"skipped":   rep.Skipped,
		"failed":    rep.Failed,
		"total":     rep.Total,
		"cancelled": rep.Cancelled,
		"elapsed":   logging.DurationMS(rep.FinishedAt.Sub(rep.StartedAt)),
	}).Info("batch run finished")

	job.finish(rep)
	o.publish(events.TopicBatchFinished, rep)
}

// settle writes a successful result to the note and records the outcome.
// Failures never abort the run.
func (o *Orchestrator) settle(ctx context.Context, job *Job, tracker *progress.Tracker, id string, r Result, rep *Report) {
	fail := func(err error) {
		msg := credential.SanitizeReason(err.Error())
		tracker.MarkFailure(job.RunID, id, msg)
		rep.Failed++
		rep.Failures[id] = msg
		monitoring.BatchItemsTotal.WithLabelValues(job.Operation, "failed").Inc()
		logging.WithRun(job.Operation, job.RunID).WithFields(log.Fields{
			"item_id": id,
			"reason":  msg,
		}).Warn("batch item failed")
	}

	switch {
	case r.Err != nil:
		fail(r.Err)
		return
	case r.Skipped:
		tracker.MarkSuccess(job.RunID, id)
		rep.Skipped++
		monitoring.BatchItemsTotal.WithLabelValues(job.Operation, "skipped").Inc()
		return
	}

	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := o.notes.SetField(ctx, id, name, r.Fields[name]); err != nil {
			fail(err)
			return
		}
	}
	if err := o.notes.UpdateNote(ctx, id); err != nil {
		fail(err)
		return
	}
	tracker.MarkSuccess(job.RunID, id)
	delete(rep.Failures, id)
	rep.Succeeded++
	monitoring.BatchItemsTotal.WithLabelValues(job.Operation, "succeeded").Inc()
}

func (o *Orchestrator) reportProgress(job *Job, rep *Report) {
	p := ProgressEvent{
		Operation: job.Operation,
		RunID:     job.RunID,
		Processed: rep.Processed(),
		Total:     rep.Total,
		Succeeded: rep.Succeeded,
		Failed:    rep.Failed,
		Paused:    job.ctrl.Paused(),
	}
	job.setProgress(p)
	o.publish(events.TopicBatchProgress, p)
}

func (o *Orchestrator) publish(topic string, payload any) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(context.Background(), topic, payload, nil)
}

// waitWhilePaused blocks in short slices while paused. It returns false when
// the run was cancelled meanwhile.
func (o *Orchestrator) waitWhilePaused(ctx context.Context, ctrl *Controller) bool {
	for ctrl.Paused() {
		if ctrl.Cancelled() || !sleepCtx(ctx, o.pauseSlice) {
			return false
		}
	}
	return !ctrl.Cancelled() && ctx.Err() == nil
}

// pace waits d in slices of at most paceSlice, returning false on cancel.
func (o *Orchestrator) pace(ctx context.Context, ctrl *Controller, d time.Duration) bool {
	for d > 0 {
		if ctrl.Cancelled() {
			return false
		}
		step := o.paceSlice
		if d < step {
			step = d
		}
		if !sleepCtx(ctx, step) {
			return false
		}
		d -= step
	}
	return !ctrl.Cancelled()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
