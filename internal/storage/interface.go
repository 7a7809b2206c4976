package storage

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// DocumentStore persists whole named JSON documents. Every backend keeps a
// backup copy of the last successful write next to the primary.
type DocumentStore interface {
	// Load returns the primary copy of the document or *ErrNotFound.
	Load(ctx context.Context, name string) ([]byte, error)
	// LoadBackup returns the backup copy of the document or *ErrNotFound.
	LoadBackup(ctx context.Context, name string) ([]byte, error)
	// Save replaces the primary atomically, then refreshes the backup.
	Save(ctx context.Context, name string, data []byte) error
	// Delete removes both the primary and the backup.
	Delete(ctx context.Context, name string) error
	// List returns document names starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	Health(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned when a document is not found
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return "document not found: " + e.Key
}

// IsNotFound reports whether err wraps *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

// Source tells which copy LoadValid returned.
type Source string

const (
	SourceNone    Source = "none"
	SourcePrimary Source = "primary"
	SourceBackup  Source = "backup"
)

// LoadValid reads the primary copy and checks it with validate. When the
// primary is missing or invalid the backup is tried and, if it validates,
// written back as the new primary. Both copies failing yields (nil, SourceNone).
// It never returns an error; callers start from an empty document.
func LoadValid(ctx context.Context, store DocumentStore, name string, validate func([]byte) error) ([]byte, Source) {
	entry := log.WithField("document", name)

	data, err := store.Load(ctx, name)
	switch {
	case err == nil:
		verr := validate(data)
		if verr == nil {
			return data, SourcePrimary
		}
		entry.WithError(verr).Warn("primary document invalid, trying backup")
	case IsNotFound(err):
	default:
		entry.WithError(err).Warn("failed to read primary document, trying backup")
	}

	backup, err := store.LoadBackup(ctx, name)
	if err != nil {
		if !IsNotFound(err) {
			entry.WithError(err).Warn("failed to read backup document")
		}
		return nil, SourceNone
	}
	if verr := validate(backup); verr != nil {
		entry.WithError(verr).Warn("backup document invalid, starting empty")
		return nil, SourceNone
	}

	if err := store.Save(ctx, name, backup); err != nil {
		entry.WithError(err).Warn("failed to restore primary from backup")
	} else {
		entry.Info("restored document from backup")
	}
	return backup, SourceBackup
}

const defaultStorageTimeout = 5 * time.Second

// WithStorageTimeout bounds ctx with the default backend timeout unless it already has a deadline.
func WithStorageTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	if d <= 0 {
		d = defaultStorageTimeout
	}
	return context.WithTimeout(ctx, d)
}
