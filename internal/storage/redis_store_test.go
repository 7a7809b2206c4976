package storage

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisDocumentStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(mr.Close)

	rs := NewRedisDocumentStore(mr.Addr(), "", 0, "cardgen-test:")
	require.NoError(t, rs.Initialize(context.Background()))
	t.Cleanup(func() { _ = rs.Close() })
	return rs, mr
}

func TestRedisDocumentStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rs, mr := newTestRedisStore(t)

	_, err := rs.Load(ctx, "api_keys")
	require.True(t, IsNotFound(err))

	require.NoError(t, rs.Save(ctx, "api_keys", []byte(`{"keys":[]}`)))

	data, err := rs.Load(ctx, "api_keys")
	require.NoError(t, err)
	require.JSONEq(t, `{"keys":[]}`, string(data))

	backup, err := rs.LoadBackup(ctx, "api_keys")
	require.NoError(t, err)
	require.Equal(t, data, backup)

	require.True(t, mr.Exists("cardgen-test:doc:api_keys"))
	require.True(t, mr.Exists("cardgen-test:doc:api_keys.bak"))

	require.NoError(t, rs.Delete(ctx, "api_keys"))
	require.False(t, mr.Exists("cardgen-test:doc:api_keys"))
	require.NoError(t, rs.Health(ctx))
}

func TestRedisDocumentStoreListSkipsBackups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rs, _ := newTestRedisStore(t)

	require.NoError(t, rs.Save(ctx, "progress_state_translation", []byte(`{}`)))
	require.NoError(t, rs.Save(ctx, "progress_state_image", []byte(`{}`)))
	require.NoError(t, rs.Save(ctx, "api_keys", []byte(`{}`)))

	names, err := rs.List(ctx, "progress_state_")
	require.NoError(t, err)
	require.Equal(t, []string{"progress_state_image", "progress_state_translation"}, names)
}

func TestLoadValidWithRedisBackup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rs, mr := newTestRedisStore(t)

	require.NoError(t, rs.Save(ctx, "doc", []byte(`{"v":2}`)))
	require.NoError(t, mr.Set("cardgen-test:doc:doc", "not json"))

	data, src := LoadValid(ctx, rs, "doc", validJSON)
	require.Equal(t, SourceBackup, src)
	require.JSONEq(t, `{"v":2}`, string(data))

	got, err := mr.Get("cardgen-test:doc:doc")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, got)
}
