package main

import (
	"bytes"
	"context"
	"testing"

	"cardgen-go/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCopiesBetweenBackends(t *testing.T) {
	ctx := context.Background()
	src, err := storage.NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, src.Save(ctx, "api_keys", []byte(`{"keys":["x"],"current_key_index":0}`)))
	require.NoError(t, src.Save(ctx, "progress_state_translation", []byte(`{"r1":{"pending":["1"]}}`)))

	snap, err := exportSnapshot(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"api_keys", "progress_state_translation"}, snap.names())

	var buf bytes.Buffer
	require.NoError(t, writeSnapshot(&buf, snap))
	back, err := readSnapshot(&buf)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	dst := storage.NewRedisDocumentStore(mr.Addr(), "", 0, "cardgen:")
	require.NoError(t, dst.Initialize(ctx))
	t.Cleanup(func() { _ = dst.Close() })

	n, err := importSnapshot(ctx, dst, back)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	diff, err := verifySnapshot(ctx, dst, snap)
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestVerifySnapshotReportsDivergence(t *testing.T) {
	ctx := context.Background()
	docs, err := storage.NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, docs.Save(ctx, "a", []byte(`{"v":1}`)))
	require.NoError(t, docs.Save(ctx, "extra", []byte(`{}`)))

	diff, err := verifySnapshot(ctx, docs, Snapshot{
		"a":       []byte(`{ "v": 2 }`),
		"missing": []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "missing", "extra"}, diff)
}

func TestSameJSONIgnoresFormatting(t *testing.T) {
	assert.True(t, sameJSON([]byte(`{"a": [1, 2]}`), []byte("{\n  \"a\": [1,2]\n}")))
	assert.False(t, sameJSON([]byte(`{"a":1}`), nil))
}
