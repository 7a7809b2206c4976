package credential

import (
	"context"
	"encoding/json"
	"fmt"

	"cardgen-go/internal/storage"

	log "github.com/sirupsen/logrus"
)

// DocumentName is the storage name of the credential pool document.
const DocumentName = "api_keys"

// Store loads and saves the pool document, obfuscating secrets at rest.
type Store struct {
	docs storage.DocumentStore
	key  []byte
	name string
}

// NewStore binds a pool document to docs. installPath seeds the obfuscation key.
func NewStore(docs storage.DocumentStore, installPath string) *Store {
	return &Store{docs: docs, key: DeriveKey(installPath), name: DocumentName}
}

// Load returns the persisted state. Missing or unreadable documents yield an
// empty state; errors are logged, never returned.
func (s *Store) Load(ctx context.Context) *State {
	data, src := storage.LoadValid(ctx, s.docs, s.name, func(b []byte) error {
		var st State
		return json.Unmarshal(b, &st)
	})
	if src == storage.SourceNone {
		return newState()
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		log.WithError(err).Warn("credential document unreadable, starting empty")
		return newState()
	}
	if st.Encrypted {
		for i, k := range st.Keys {
			st.Keys[i] = revealKey(k, s.key)
		}
	}
	st.Encrypted = false
	st.clampIndex()
	for id, stats := range st.Stats {
		if stats == nil {
			delete(st.Stats, id)
			continue
		}
		if stats.KeyID == "" {
			stats.KeyID = id
		}
	}
	if src == storage.SourceBackup {
		log.WithField("keys", len(st.Keys)).Warn("credential pool restored from backup")
	}
	return &st
}

// Save writes st with every secret obfuscated. st itself is not modified.
func (s *Store) Save(ctx context.Context, st *State) error {
	out := State{
		Keys:            make([]string, len(st.Keys)),
		CurrentKeyIndex: st.CurrentKeyIndex,
		TotalRotations:  st.TotalRotations,
		LastRotation:    st.LastRotation,
		Stats:           st.Stats,
		Encrypted:       true,
	}
	for i, k := range st.Keys {
		out.Keys[i] = Obfuscate(k, s.key)
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential document: %w", err)
	}
	if err := s.docs.Save(ctx, s.name, data); err != nil {
		return fmt.Errorf("save credential document: %w", err)
	}
	return nil
}
