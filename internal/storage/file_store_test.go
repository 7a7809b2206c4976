package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validJSON(data []byte) error {
	var v map[string]any
	return json.Unmarshal(data, &v)
}

func TestFileDocumentStoreSaveWritesPrimaryAndBackup(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Save(ctx, "progress_state_translation", []byte(`{"a":1}`)))

	primary, err := os.ReadFile(filepath.Join(fs.Dir(), "progress_state_translation.json"))
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(primary))

	backup, err := fs.LoadBackup(ctx, "progress_state_translation")
	require.NoError(t, err)
	require.Equal(t, primary, backup)

	info, err := os.Stat(fs.Path("progress_state_translation"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(fs.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp")
	}
}

func TestFileDocumentStoreLoadMissing(t *testing.T) {
	fs, err := NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Load(context.Background(), "nope")
	require.True(t, IsNotFound(err))
}

func TestFileDocumentStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Save(ctx, "progress_state_image", []byte(`{}`)))
	require.NoError(t, fs.Save(ctx, "progress_state_sentence", []byte(`{}`)))
	require.NoError(t, fs.Save(ctx, "api_keys", []byte(`{}`)))

	names, err := fs.List(ctx, "progress_state_")
	require.NoError(t, err)
	require.Equal(t, []string{"progress_state_image", "progress_state_sentence"}, names)

	require.NoError(t, fs.Delete(ctx, "api_keys"))
	require.NoError(t, fs.Delete(ctx, "api_keys"))
	_, err = fs.LoadBackup(ctx, "api_keys")
	require.True(t, IsNotFound(err))
}

func TestLoadValidFallsBackToBackupAndRestores(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Save(ctx, "doc", []byte(`{"ok":true}`)))
	require.NoError(t, os.WriteFile(fs.Path("doc"), []byte("{broken"), 0o600))

	data, src := LoadValid(ctx, fs, "doc", validJSON)
	require.Equal(t, SourceBackup, src)
	require.JSONEq(t, `{"ok":true}`, string(data))

	restored, err := os.ReadFile(fs.Path("doc"))
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(restored))
}

func TestLoadValidBothCorrupt(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(fs.Path("doc"), []byte("garbage"), 0o600))
	require.NoError(t, os.WriteFile(fs.Path("doc")+backupSuffix, []byte("also garbage"), 0o600))

	data, src := LoadValid(ctx, fs, "doc", validJSON)
	require.Nil(t, data)
	require.Equal(t, SourceNone, src)
}

func TestLoadValidMissing(t *testing.T) {
	fs, err := NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)

	data, src := LoadValid(context.Background(), fs, "missing", validJSON)
	require.Nil(t, data)
	require.Equal(t, SourceNone, src)
}
