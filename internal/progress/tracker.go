package progress

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"cardgen-go/internal/credential"
	"cardgen-go/internal/storage"

	log "github.com/sirupsen/logrus"
)

// DocumentPrefix prefixes the per-operation progress document name.
const DocumentPrefix = "progress_state_"

// Tracker persists batch progress for one operation. Every mutation rewrites
// the whole document and the storage backend mirrors each save into a backup
// copy, which load falls back to when the primary is unreadable. Mutations on
// unknown runs are ignored.
type Tracker struct {
	mu        sync.Mutex
	docs      storage.DocumentStore
	operation string
	name      string
	runs      map[string]*Run
	now       func() time.Time
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker loads the progress document of operation from docs. A missing
// or unreadable document (and backup) yields an empty tracker.
func NewTracker(ctx context.Context, docs storage.DocumentStore, operation string, opts ...Option) *Tracker {
	t := &Tracker{
		docs:      docs,
		operation: operation,
		name:      DocumentPrefix + operation,
		runs:      make(map[string]*Run),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.load(ctx)
	return t
}

// Operation returns the operation tag this tracker persists.
func (t *Tracker) Operation() string { return t.operation }

func (t *Tracker) load(ctx context.Context) {
	data, src := storage.LoadValid(ctx, t.docs, t.name, func(b []byte) error {
		var runs map[string]*Run
		return json.Unmarshal(b, &runs)
	})
	if src == storage.SourceNone {
		return
	}
	var runs map[string]*Run
	if err := json.Unmarshal(data, &runs); err != nil {
		return
	}
	for id, r := range runs {
		if r == nil {
			continue
		}
		if r.Operation == "" {
			r.Operation = t.operation
		}
		t.runs[id] = r
	}
	if src == storage.SourceBackup {
		t.logger().WithField("runs", len(t.runs)).Warn("progress restored from backup")
	}
}

func (t *Tracker) logger() *log.Entry {
	return log.WithFields(log.Fields{"component": "progress", "operation": t.operation})
}

// saveLocked writes the document. Failures are logged; the in-memory state
// stays authoritative until the next successful write.
func (t *Tracker) saveLocked() {
	data, err := json.MarshalIndent(t.runs, "", "  ")
	if err != nil {
		t.logger().WithError(err).Error("failed to encode progress document")
		return
	}
	ctx, cancel := storage.WithStorageTimeout(context.Background(), 0)
	defer cancel()
	if err := t.docs.Save(ctx, t.name, data); err != nil {
		t.logger().WithError(err).Error("failed to save progress document")
	}
}

func (t *Tracker) stamp() time.Time { return t.now().UTC().Truncate(time.Second) }

// StartRun creates or replaces runID with itemIDs, duplicates removed and
// order kept.
func (t *Tracker) StartRun(runID, name string, itemIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := dedupe(itemIDs)
	now := t.stamp()
	t.runs[runID] = &Run{
		Name:        name,
		Pending:     ids,
		Failed:      make(map[string]*Failure),
		Total:       len(ids),
		StartedAt:   now,
		LastUpdated: now,
		Operation:   t.operation,
	}
	t.saveLocked()
	t.logger().WithFields(log.Fields{"run_id": runID, "total": len(ids)}).Info("progress run started")
}

// HasPendingRun reports whether runID exists with items left.
func (t *Tracker) HasPendingRun(runID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.runs[runID]
	return r != nil && len(r.Pending) > 0
}

// Pending returns a copy of the pending ids of runID in order.
func (t *Tracker) Pending(runID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.runs[runID]
	if r == nil {
		return nil
	}
	return append([]string(nil), r.Pending...)
}

// FailedDetails returns a copy of the failure records of runID.
func (t *Tracker) FailedDetails(runID string) map[string]Failure {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.runs[runID]
	if r == nil {
		return map[string]Failure{}
	}
	out := make(map[string]Failure, len(r.Failed))
	for id, f := range r.Failed {
		out[id] = *f
	}
	return out
}

// MarkSuccess removes itemID from pending and forgets its failures.
func (t *Tracker) MarkSuccess(runID, itemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.runs[runID]
	if r == nil {
		return
	}
	for i, id := range r.Pending {
		if id == itemID {
			r.Pending = append(r.Pending[:i], r.Pending[i+1:]...)
			break
		}
	}
	delete(r.Failed, itemID)
	r.LastUpdated = t.stamp()
	t.saveLocked()
}

// MarkFailure records message against itemID. The item stays pending so a
// resumed run tries it again.
func (t *Tracker) MarkFailure(runID, itemID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.runs[runID]
	if r == nil {
		return
	}
	now := t.stamp()
	f := r.Failed[itemID]
	if f == nil {
		f = &Failure{}
		r.Failed[itemID] = f
	}
	f.Message = credential.SanitizeReason(message)
	f.LastFailure = now
	f.Count++
	r.LastUpdated = now
	t.saveLocked()
}

// ClearRun forgets runID.
func (t *Tracker) ClearRun(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.runs[runID]; !ok {
		return
	}
	delete(t.runs, runID)
	t.saveLocked()
	t.logger().WithField("run_id", runID).Info("progress run cleared")
}

// ResetFailuresToPending appends failed items missing from pending and
// clears the failure records.
func (t *Tracker) ResetFailuresToPending(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.runs[runID]
	if r == nil || len(r.Failed) == 0 {
		return
	}
	inPending := make(map[string]struct{}, len(r.Pending))
	for _, id := range r.Pending {
		inPending[id] = struct{}{}
	}
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		if _, ok := inPending[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	r.Pending = append(r.Pending, ids...)
	r.Failed = make(map[string]*Failure)
	r.LastUpdated = t.stamp()
	t.saveLocked()
}

// ClearMissing drops pending and failed items that are not in existing.
func (t *Tracker) ClearMissing(runID string, existing []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.runs[runID]
	if r == nil {
		return
	}
	keep := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		keep[id] = struct{}{}
	}
	pending := r.Pending[:0]
	for _, id := range r.Pending {
		if _, ok := keep[id]; ok {
			pending = append(pending, id)
		}
	}
	r.Pending = pending
	for id := range r.Failed {
		if _, ok := keep[id]; !ok {
			delete(r.Failed, id)
		}
	}
	r.LastUpdated = t.stamp()
	t.saveLocked()
}

// DescribeRun summarises runID.
func (t *Tracker) DescribeRun(runID string) (Summary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.runs[runID]
	if r == nil {
		return Summary{}, false
	}
	return r.summary(runID), true
}

// AllRuns summarises every run, ordered by start time then id.
func (t *Tracker) AllRuns() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Summary, 0, len(t.runs))
	for id, r := range t.runs {
		out = append(out, r.summary(id))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	return out
}
