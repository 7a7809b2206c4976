package notes

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoteNotFound is returned for an unknown note id.
	ErrNoteNotFound = errors.New("note not found")
	// ErrFieldNotFound is returned when a note has no field of that name.
	ErrFieldNotFound = errors.New("field not found")
)

// Store is the host note collection as seen by batch processors. SetField
// stages a change; UpdateNote commits the staged changes of one note.
type Store interface {
	Field(ctx context.Context, id, name string) (string, error)
	SetField(ctx context.Context, id, name, value string) error
	UpdateNote(ctx context.Context, id string) error
	NoteIDs(ctx context.Context, deck string) ([]string, error)
}

// Note is one flashcard note.
type Note struct {
	ID     string            `json:"id"`
	Deck   string            `json:"deck"`
	Fields map[string]string `json:"fields"`
}

func fieldError(id, name string) error {
	return fmt.Errorf("note %s: %q: %w", id, name, ErrFieldNotFound)
}

func noteError(id string) error {
	return fmt.Errorf("note %s: %w", id, ErrNoteNotFound)
}
