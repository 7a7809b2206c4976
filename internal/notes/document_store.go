package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cardgen-go/internal/storage"

	log "github.com/sirupsen/logrus"
)

// DefaultDocumentName is the storage name of the notes collection.
const DefaultDocumentName = "notes"

type collection struct {
	Notes []*Note `json:"notes"`
}

// DocumentStore keeps the whole note collection in one storage document.
// It backs the standalone binary when no host application is attached.
type DocumentStore struct {
	mu     sync.Mutex
	docs   storage.DocumentStore
	name   string
	order  []string
	notes  map[string]*Note
	staged map[string]map[string]string
}

// NewDocumentStore loads the collection named name from docs. A missing
// document yields an empty collection; an unreadable one is an error so a
// typo in a hand-edited file never wipes the notes.
func NewDocumentStore(ctx context.Context, docs storage.DocumentStore, name string) (*DocumentStore, error) {
	if name == "" {
		name = DefaultDocumentName
	}
	s := &DocumentStore{
		docs:   docs,
		name:   name,
		notes:  make(map[string]*Note),
		staged: make(map[string]map[string]string),
	}
	data, err := docs.Load(ctx, name)
	if err != nil {
		if storage.IsNotFound(err) {
			return s, nil
		}
		return nil, fmt.Errorf("load notes: %w", err)
	}
	var c collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	for _, n := range c.Notes {
		if n == nil || n.ID == "" {
			continue
		}
		if n.Fields == nil {
			n.Fields = make(map[string]string)
		}
		if _, dup := s.notes[n.ID]; !dup {
			s.order = append(s.order, n.ID)
		}
		s.notes[n.ID] = n
	}
	return s, nil
}

func (s *DocumentStore) Field(_ context.Context, id, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return "", noteError(id)
	}
	if v, ok := s.staged[id][name]; ok {
		return v, nil
	}
	v, ok := n.Fields[name]
	if !ok {
		return "", fieldError(id, name)
	}
	return v, nil
}

// SetField stages value; the field must already exist on the note.
func (s *DocumentStore) SetField(_ context.Context, id, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return noteError(id)
	}
	if _, ok := n.Fields[name]; !ok {
		return fieldError(id, name)
	}
	if s.staged[id] == nil {
		s.staged[id] = make(map[string]string)
	}
	s.staged[id][name] = value
	return nil
}

// UpdateNote applies the staged fields of id and persists the collection.
// On a storage error the staged fields are kept for a later attempt.
func (s *DocumentStore) UpdateNote(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return noteError(id)
	}
	changes := s.staged[id]
	if len(changes) == 0 {
		return nil
	}
	previous := make(map[string]string, len(changes))
	for k, v := range changes {
		previous[k] = n.Fields[k]
		n.Fields[k] = v
	}
	if err := s.saveLocked(ctx); err != nil {
		for k, v := range previous {
			n.Fields[k] = v
		}
		return err
	}
	delete(s.staged, id)
	log.WithFields(log.Fields{"note_id": id, "fields": len(changes)}).Debug("note updated")
	return nil
}

// NoteIDs lists notes of deck in insertion order. Sub-decks ("deck::child")
// are included; an empty deck lists every note.
func (s *DocumentStore) NoteIDs(_ context.Context, deck string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		d := s.notes[id].Deck
		if deck == "" || d == deck || strings.HasPrefix(d, deck+"::") {
			out = append(out, id)
		}
	}
	return out, nil
}

// Put inserts or replaces a note and persists the collection.
func (s *DocumentStore) Put(ctx context.Context, n Note) error {
	if n.ID == "" {
		return fmt.Errorf("note id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := &Note{ID: n.ID, Deck: n.Deck, Fields: make(map[string]string, len(n.Fields))}
	for k, v := range n.Fields {
		cp.Fields[k] = v
	}
	if _, exists := s.notes[n.ID]; !exists {
		s.order = append(s.order, n.ID)
	}
	s.notes[n.ID] = cp
	delete(s.staged, n.ID)
	return s.saveLocked(ctx)
}

// Get returns a copy of the committed note.
func (s *DocumentStore) Get(_ context.Context, id string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return Note{}, noteError(id)
	}
	cp := Note{ID: n.ID, Deck: n.Deck, Fields: make(map[string]string, len(n.Fields))}
	for k, v := range n.Fields {
		cp.Fields[k] = v
	}
	return cp, nil
}

// Decks lists the distinct deck names.
func (s *DocumentStore) Decks(_ context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for _, n := range s.notes {
		seen[n.Deck] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (s *DocumentStore) saveLocked(ctx context.Context) error {
	c := collection{Notes: make([]*Note, 0, len(s.order))}
	for _, id := range s.order {
		c.Notes = append(c.Notes, s.notes[id])
	}
	data, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	ctx, cancel := storage.WithStorageTimeout(ctx, 0)
	defer cancel()
	if err := s.docs.Save(ctx, s.name, data); err != nil {
		return fmt.Errorf("save notes: %w", err)
	}
	return nil
}
