package credential

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"cardgen-go/internal/storage"

	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) (*Store, *storage.FileDocumentStore) {
	t.Helper()
	docs, err := storage.NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)
	return NewStore(docs, "/opt/cardgen"), docs
}

func TestStoreSaveObfuscatesAndLoads(t *testing.T) {
	ctx := context.Background()
	store, docs := newFileStore(t)

	st := newState()
	st.Keys = []string{testKey('a'), testKey('b')}
	st.CurrentKeyIndex = 1
	st.ensureStats(testKey('a')).TotalRequests = 7
	require.NoError(t, store.Save(ctx, st))

	raw, err := os.ReadFile(docs.Path(DocumentName))
	require.NoError(t, err)
	require.NotContains(t, string(raw), testKey('a'))
	require.NotContains(t, string(raw), testKey('b'))
	require.Contains(t, string(raw), `"encrypted": true`)

	loaded := store.Load(ctx)
	require.Equal(t, st.Keys, loaded.Keys)
	require.Equal(t, 1, loaded.CurrentKeyIndex)
	require.EqualValues(t, 7, loaded.Stats[Mask(testKey('a'))].TotalRequests)
	require.False(t, loaded.Encrypted)
}

func TestStoreLoadsLegacyPlaintext(t *testing.T) {
	ctx := context.Background()
	store, docs := newFileStore(t)

	legacy := map[string]any{
		"keys":              []string{testKey('l')},
		"current_key_index": 4,
		"total_rotations":   3,
		"last_rotation":     "2024-05-01T10:00:00.123456",
		"stats": map[string]any{
			Mask(testKey('l')): map[string]any{
				"key_id":                 Mask(testKey('l')),
				"total_words_translated": 12,
				"exhausted_at":           "2024-05-01T09:00:00",
			},
		},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, docs.Save(ctx, DocumentName, data))

	loaded := store.Load(ctx)
	require.Equal(t, []string{testKey('l')}, loaded.Keys)
	require.Equal(t, 0, loaded.CurrentKeyIndex)
	require.EqualValues(t, 3, loaded.TotalRotations)
	require.NotNil(t, loaded.LastRotation)

	st := loaded.Stats[Mask(testKey('l'))]
	require.NotNil(t, st)
	require.EqualValues(t, 12, st.TotalWordsProcessed)
	require.True(t, st.IsActive)
	require.NotNil(t, st.ExhaustedUntil)
	exhaustedAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	require.True(t, st.ExhaustedUntil.Equal(exhaustedAt.Add(DefaultCooldown)))
}

func TestStoreCorruptDocumentFallsBackToBackup(t *testing.T) {
	ctx := context.Background()
	store, docs := newFileStore(t)

	st := newState()
	st.Keys = []string{testKey('c')}
	require.NoError(t, store.Save(ctx, st))
	require.NoError(t, os.WriteFile(docs.Path(DocumentName), []byte("{not json"), 0o600))

	loaded := store.Load(ctx)
	require.Equal(t, []string{testKey('c')}, loaded.Keys)
}

func TestStoreCorruptEverywhereYieldsEmpty(t *testing.T) {
	ctx := context.Background()
	store, docs := newFileStore(t)

	require.NoError(t, os.WriteFile(docs.Path(DocumentName), []byte("garbage"), 0o600))
	loaded := store.Load(ctx)
	require.Empty(t, loaded.Keys)
	require.NotNil(t, loaded.Stats)
}

func TestStoreMissingDocumentYieldsEmpty(t *testing.T) {
	store, _ := newFileStore(t)
	loaded := store.Load(context.Background())
	require.Empty(t, loaded.Keys)
	require.Equal(t, 0, loaded.CurrentKeyIndex)
}
