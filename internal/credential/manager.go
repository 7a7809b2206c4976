package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "cardgen-go/internal/errors"
	"cardgen-go/internal/events"
	"cardgen-go/internal/storage"
)

var (
	// ErrSingleCredential is returned by Advance when there is nothing to rotate to.
	ErrSingleCredential = errors.New("no other API key available to switch to")
	// ErrAllExhausted is returned by Advance when every other credential is unusable.
	ErrAllExhausted = fmt.Errorf("all API keys are exhausted: %w", apperrors.ErrExhausted)
)

// Options configure how the credential manager behaves.
type Options struct {
	Store            *Store
	MaxCredentials   int
	Cooldown         time.Duration
	FailureThreshold int
	// DisableRotation keeps failures from moving the current index. Manual
	// Advance calls still rotate.
	DisableRotation bool
	Publisher       events.Publisher
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager owns the credential pool: selection, rotation, health and
// statistics. All methods are safe for concurrent use; each state
// read-modify-write runs under one mutex and ends with a persist.
type Manager struct {
	mu    sync.Mutex
	state *State
	store *Store

	maxKeys          int
	cooldown         time.Duration
	failureThreshold int
	rotate           bool
	publisher        events.Publisher
	now              func() time.Time

	dirty   bool
	pending []pendingEvent
}

// NewManager builds a manager and loads the persisted pool.
func NewManager(ctx context.Context, opts Options) *Manager {
	m := &Manager{
		store:            opts.Store,
		maxKeys:          opts.MaxCredentials,
		cooldown:         opts.Cooldown,
		failureThreshold: opts.FailureThreshold,
		rotate:           !opts.DisableRotation,
		publisher:        opts.Publisher,
		now:              opts.Now,
		state:            newState(),
	}
	if m.maxKeys <= 0 {
		m.maxKeys = DefaultMaxCredentials
	}
	if m.cooldown <= 0 {
		m.cooldown = DefaultCooldown
	}
	if m.failureThreshold <= 0 {
		m.failureThreshold = DefaultFailureThreshold
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.Reload(ctx)
	return m
}

// NewMemoryManager returns a manager that persists nowhere, seeded with keys.
// Invalid keys are skipped.
func NewMemoryManager(opts Options, keys ...string) *Manager {
	opts.Store = nil
	m := NewManager(context.Background(), opts)
	for _, k := range keys {
		_ = m.Add(k)
	}
	return m
}

// Reload replaces the in-memory pool with the persisted one.
func (m *Manager) Reload(ctx context.Context) {
	var st *State
	if m.store != nil {
		st = m.store.Load(ctx)
	} else {
		st = newState()
	}
	for _, k := range st.Keys {
		st.ensureStats(k)
	}

	m.mu.Lock()
	defer m.unlockAndPublish()
	m.state = st
	m.emit(events.TopicCredentialChanged, CredentialEvent{Action: "reloaded", Timestamp: m.now().UTC()})
}

// persistLocked writes the pool. Storage failures are logged and absorbed:
// the in-memory view stays authoritative.
func (m *Manager) persistLocked() {
	m.dirty = false
	if m.store == nil {
		return
	}
	ctx, cancel := storage.WithStorageTimeout(context.Background(), 0)
	defer cancel()
	if err := m.store.Save(ctx, m.state); err != nil {
		logger().WithError(err).Error("failed to persist credential pool")
	}
}

// unlockAndPublish persists pending changes, refreshes gauges, releases the
// lock and only then delivers queued events so subscribers may call back in.
func (m *Manager) unlockAndPublish() {
	if m.dirty {
		m.persistLocked()
	}
	m.updateGaugesLocked()
	queued := m.pending
	m.pending = nil
	publisher := m.publisher
	m.mu.Unlock()

	if publisher == nil {
		return
	}
	for _, ev := range queued {
		publisher.Publish(context.Background(), ev.topic, ev.payload, nil)
	}
}
