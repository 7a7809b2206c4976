package batch

import (
	"context"
	"time"
)

// Operation tags. Each has its own progress document and at most one
// running batch.
const (
	OpTranslation = "translation"
	OpSentence    = "sentence"
	OpImage       = "image"
)

// Result is the outcome of processing one item.
type Result struct {
	// Fields are written to the note on success.
	Fields map[string]string
	// Skipped items count as done without touching the note.
	Skipped bool
	Err     error
}

// Processor produces note field values for a group of items. Process must
// return exactly one Result per id, in order.
type Processor interface {
	Operation() string
	BatchSize() int
	Process(ctx context.Context, ids []string) []Result
}

// Report is the tally of one batch execution.
type Report struct {
	Operation  string            `json:"operation"`
	RunID      string            `json:"run_id"`
	Name       string            `json:"name"`
	Total      int               `json:"total"`
	Succeeded  int               `json:"succeeded"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Cancelled  bool              `json:"cancelled"`
	Failures   map[string]string `json:"failures,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Processed is the number of items that reached a terminal outcome.
func (r Report) Processed() int { return r.Succeeded + r.Skipped + r.Failed }

// ProgressEvent is published after every processed group.
type ProgressEvent struct {
	Operation string `json:"operation"`
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Paused    bool   `json:"paused"`
}
