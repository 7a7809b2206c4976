package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"cardgen-go/internal/storage"

	"github.com/tidwall/gjson"
)

// Snapshot maps document names to their raw JSON bodies.
type Snapshot map[string]json.RawMessage

func exportSnapshot(ctx context.Context, docs storage.DocumentStore) (Snapshot, error) {
	names, err := docs.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	snap := make(Snapshot, len(names))
	for _, name := range names {
		data, err := docs.Load(ctx, name)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		if !gjson.ValidBytes(data) {
			return nil, fmt.Errorf("document %s is not valid JSON", name)
		}
		snap[name] = json.RawMessage(data)
	}
	return snap, nil
}

func importSnapshot(ctx context.Context, docs storage.DocumentStore, snap Snapshot) (int, error) {
	for _, name := range snap.names() {
		if err := docs.Save(ctx, name, snap[name]); err != nil {
			return 0, fmt.Errorf("save %s: %w", name, err)
		}
	}
	return len(snap), nil
}

// verifySnapshot returns the names whose stored body differs from snap,
// ignoring formatting.
func verifySnapshot(ctx context.Context, docs storage.DocumentStore, snap Snapshot) ([]string, error) {
	current, err := exportSnapshot(ctx, docs)
	if err != nil {
		return nil, err
	}
	var diff []string
	seen := make(map[string]bool, len(snap))
	for _, name := range snap.names() {
		seen[name] = true
		if !sameJSON(snap[name], current[name]) {
			diff = append(diff, name)
		}
	}
	for _, name := range current.names() {
		if !seen[name] {
			diff = append(diff, name)
		}
	}
	return diff, nil
}

func (s Snapshot) names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sameJSON(a, b []byte) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

func writeSnapshot(w io.Writer, snap Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func readSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return snap, nil
}
