package progress

import (
	"bytes"
	"encoding/json"
	"time"
)

// Failure records the latest error for an item and how often it failed.
type Failure struct {
	Message     string    `json:"message"`
	LastFailure time.Time `json:"last_failure"`
	Count       int       `json:"count"`
}

// Run is the persisted progress of one batch.
type Run struct {
	Name        string              `json:"name"`
	Pending     ItemIDs             `json:"pending"`
	Failed      map[string]*Failure `json:"failed"`
	Total       int                 `json:"total"`
	StartedAt   time.Time           `json:"started_at"`
	LastUpdated time.Time           `json:"last_updated"`
	Operation   string              `json:"operation"`
}

// Summary describes a run without its item lists.
type Summary struct {
	RunID        string    `json:"run_id"`
	Name         string    `json:"name"`
	PendingCount int       `json:"pending_count"`
	FailedCount  int       `json:"failed_count"`
	Total        int       `json:"total"`
	StartedAt    time.Time `json:"started_at"`
	LastUpdated  time.Time `json:"last_updated"`
	Operation    string    `json:"operation"`
}

type runFields Run

type runJSON struct {
	runFields
	DeckName string `json:"deck_name,omitempty"`
}

// UnmarshalJSON also accepts documents that stored the run name as deck_name.
func (r *Run) UnmarshalJSON(data []byte) error {
	var aux runJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Run(aux.runFields)
	if r.Name == "" {
		r.Name = aux.DeckName
	}
	if r.Failed == nil {
		r.Failed = make(map[string]*Failure)
	}
	for id, f := range r.Failed {
		if f == nil {
			delete(r.Failed, id)
		}
	}
	return nil
}

func (r *Run) summary(runID string) Summary {
	return Summary{
		RunID:        runID,
		Name:         r.Name,
		PendingCount: len(r.Pending),
		FailedCount:  len(r.Failed),
		Total:        r.Total,
		StartedAt:    r.StartedAt,
		LastUpdated:  r.LastUpdated,
		Operation:    r.Operation,
	}
}

// ItemIDs is an ordered list of item ids. Numeric ids written by older
// versions decode to their decimal form.
type ItemIDs []string

func (ids *ItemIDs) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*ids = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ItemIDs, 0, len(raw))
	for _, r := range raw {
		r = bytes.TrimSpace(r)
		if len(r) > 0 && r[0] == '"' {
			var s string
			if err := json.Unmarshal(r, &s); err != nil {
				return err
			}
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(r, &n); err != nil {
			return err
		}
		out = append(out, n.String())
	}
	*ids = out
	return nil
}

// dedupe keeps the first occurrence of every id.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
