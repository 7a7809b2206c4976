package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cardgen-go/internal/batch"
	"cardgen-go/internal/config"
	"cardgen-go/internal/credential"
	apperrors "cardgen-go/internal/errors"
	"cardgen-go/internal/logging"
	"cardgen-go/internal/notes"
	"cardgen-go/internal/progress"
	"cardgen-go/internal/runtime"
	"cardgen-go/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mgmtKey = "mgmt-secret"

func key(c byte) string { return "AIza" + strings.Repeat(string(c), 35) }

type fakeTester struct {
	err  error
	keys []string
}

func (f *fakeTester) TestConnection(_ context.Context, apiKey string) error {
	f.keys = append(f.keys, apiKey)
	return f.err
}

// gatedProcessor blocks every item until release is closed.
type gatedProcessor struct {
	entered chan string
	release chan struct{}
}

func (p *gatedProcessor) Operation() string { return batch.OpTranslation }
func (p *gatedProcessor) BatchSize() int    { return 1 }

func (p *gatedProcessor) Process(ctx context.Context, ids []string) []batch.Result {
	out := make([]batch.Result, len(ids))
	for i, id := range ids {
		select {
		case p.entered <- id:
		default:
		}
		select {
		case <-p.release:
		case <-ctx.Done():
		}
		if id == "bad" {
			out[i] = batch.Result{Err: errors.New("no translation returned")}
			continue
		}
		out[i] = batch.Result{Fields: map[string]string{"Back": "done-" + id}}
	}
	return out
}

type testServer struct {
	engine *gin.Engine
	creds  *credential.Manager
	tester *fakeTester
	orch   *batch.Orchestrator
	proc   *gatedProcessor
	docs   storage.DocumentStore
	tasks  *runtime.TaskManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	docs, err := storage.NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)
	ns, err := notes.NewDocumentStore(ctx, docs, "")
	require.NoError(t, err)
	for _, id := range []string{"1", "2", "bad"} {
		require.NoError(t, ns.Put(ctx, notes.Note{ID: id, Deck: "Korean", Fields: map[string]string{"Front": "w" + id, "Back": ""}}))
	}

	tasks := runtime.NewTaskManager(ctx)
	t.Cleanup(func() {
		_ = tasks.Shutdown(context.Background())
	})
	orch := batch.New(batch.Options{Notes: ns, Tasks: tasks, PauseSlice: 5 * time.Millisecond, PaceSlice: 5 * time.Millisecond})
	proc := &gatedProcessor{entered: make(chan string, 8), release: make(chan struct{})}
	orch.Register(proc, progress.NewTracker(ctx, docs, batch.OpTranslation), 0)

	stream := logging.NewStream()
	stream.Start()
	t.Cleanup(stream.Stop)
	stream.Publish(logging.Message{Kind: "log", Message: "hello"})

	ts := &testServer{
		creds:  credential.NewMemoryManager(credential.Options{}, key('a'), key('b')),
		tester: &fakeTester{},
		orch:   orch,
		proc:   proc,
		docs:   docs,
		tasks:  tasks,
	}
	cfg := &config.Config{}
	cfg.Server.ManagementKey = mgmtKey
	ts.engine = BuildEngine(cfg, Dependencies{
		Credentials:  ts.creds,
		Gateway:      ts.tester,
		Orchestrator: orch,
		Tasks:        tasks,
		Stream:       stream,
		Storage:      docs,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Authorization", "Bearer "+mgmtKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cardgen_http_requests_total")
}

func TestManagementRequiresKey(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/management/credentials", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/api/management/credentials", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store, no-cache, must-revalidate", w.Header().Get("Cache-Control"))
}

func TestCredentialRoutes(t *testing.T) {
	ts := newTestServer(t)

	t.Run("list shows masked ids only", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/management/credentials", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), key('a'))
		assert.Contains(t, w.Body.String(), credential.Mask(key('a')))
		assert.EqualValues(t, 2, decode(t, w)["total"])
	})

	t.Run("add validates format", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/management/credentials", gin.H{"key": "not-a-key"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = ts.do(t, http.MethodPost, "/api/management/credentials", gin.H{"key": key('c')})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, credential.Mask(key('c')), decode(t, w)["id"])
		assert.Equal(t, 3, ts.creds.Count())
	})

	t.Run("rotate and select", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/management/credentials/rotate", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, credential.Mask(key('b')), decode(t, w)["current"])

		w = ts.do(t, http.MethodPost, "/api/management/credentials/0/select", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, credential.Mask(key('a')), ts.creds.CurrentID())

		w = ts.do(t, http.MethodPost, "/api/management/credentials/9/select", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = ts.do(t, http.MethodPost, "/api/management/credentials/x/select", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("deactivate and activate", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/management/credentials/1/deactivate", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, ts.creds.Usable(credential.Mask(key('b'))))

		w = ts.do(t, http.MethodPost, "/api/management/credentials/1/activate", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, ts.creds.Usable(credential.Mask(key('b'))))
	})

	t.Run("cooldown reset", func(t *testing.T) {
		_, _ = ts.creds.RecordFailure("429 quota exceeded")
		w := ts.do(t, http.MethodPost, "/api/management/credentials/0/reset-cooldown", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, ts.creds.Usable(credential.Mask(key('a'))))
	})

	t.Run("summary and stats", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/api/management/credentials/summary", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 3, decode(t, w)["total_keys"])

		w = ts.do(t, http.MethodGet, "/api/management/credentials/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), key('a'))

		w = ts.do(t, http.MethodPost, "/api/management/credentials/reset-stats", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 0, decode(t, w)["total_requests"])
	})

	t.Run("remove", func(t *testing.T) {
		w := ts.do(t, http.MethodDelete, "/api/management/credentials/2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 2, ts.creds.Count())
	})
}

func TestRotateWithSingleCredentialConflicts(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.creds.Remove(1))

	w := ts.do(t, http.MethodPost, "/api/management/credentials/rotate", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestConnectionTest(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/management/credentials/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ok"])
	assert.Equal(t, []string{""}, ts.tester.keys)

	ts.tester.err = &apperrors.ClassifiedError{Kind: apperrors.KindInvalidCredential, Message: "API key not valid"}
	w = ts.do(t, http.MethodPost, "/api/management/credentials/test", gin.H{"key": key('z')})
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, "invalid_credential", body["kind"])
	assert.Equal(t, apperrors.UserMessage(apperrors.KindInvalidCredential), body["error"])

	w = ts.do(t, http.MethodPost, "/api/management/credentials/test", gin.H{"key": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func waitEntered(t *testing.T, p *gatedProcessor) string {
	t.Helper()
	select {
	case id := <-p.entered:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("processor was not called")
		return ""
	}
}

func waitJob(t *testing.T, ts *testServer) batch.Report {
	t.Helper()
	job, ok := ts.orch.Job(batch.OpTranslation)
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := job.Wait(ctx)
	require.NoError(t, err)
	return rep
}

func TestBatchLifecycle(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/management/batches/translation", gin.H{"run_id": "r1", "name": "Korean", "item_ids": []string{"1", "2"}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "r1", decode(t, w)["run_id"])
	waitEntered(t, ts.proc)

	w = ts.do(t, http.MethodPost, "/api/management/batches/translation", gin.H{"item_ids": []string{"1"}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/api/management/batches/translation/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["progress"].(map[string]any)["paused"])

	w = ts.do(t, http.MethodPost, "/api/management/batches/translation/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)

	close(ts.proc.release)
	rep := waitJob(t, ts)
	assert.Equal(t, 2, rep.Succeeded)

	w = ts.do(t, http.MethodGet, "/api/management/batches/translation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["running"])
	assert.EqualValues(t, 2, body["report"].(map[string]any)["succeeded"])

	w = ts.do(t, http.MethodPost, "/api/management/batches/translation/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodGet, "/api/management/batches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"operation":"translation"`)
}

func TestBatchCancelThenResume(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/management/batches/translation", gin.H{"deck": "Korean"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	waitEntered(t, ts.proc)

	w = ts.do(t, http.MethodPost, "/api/management/batches/translation/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	close(ts.proc.release)
	rep := waitJob(t, ts)
	assert.True(t, rep.Cancelled)

	w = ts.do(t, http.MethodGet, "/api/management/batches/translation/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = ts.do(t, http.MethodGet, "/api/management/batches/translation/runs/Korean", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode(t, w)["pending"].([]any)
	assert.NotEmpty(t, pending)

	w = ts.do(t, http.MethodPost, "/api/management/batches/translation/runs/Korean/resume", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	rep = waitJob(t, ts)
	assert.False(t, rep.Cancelled)
	assert.Equal(t, 1, rep.Failed)

	w = ts.do(t, http.MethodPost, "/api/management/batches/translation/runs/Korean/resume", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatchErrors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/management/batches/audio", gin.H{"item_ids": []string{"1"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/api/management/batches/translation", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/management/batches/translation", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/management/batches/translation/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/management/batches/audio/runs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTasksAndLogs(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/management/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "tasks")

	w = ts.do(t, http.MethodGet, "/api/management/tasks/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodPost, "/api/management/tasks/nope/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, ts.tasks.Start("sync:test", "blocks until stopped", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	w = ts.do(t, http.MethodGet, "/api/management/tasks/sync:test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", decode(t, w)["status"])
	assert.Equal(t, "sync", decode(t, w)["kind"])

	w = ts.do(t, http.MethodPost, "/api/management/tasks/sync:test/stop", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	done, err := ts.tasks.Done("sync:test")
	require.NoError(t, err)
	<-done
	w = ts.do(t, http.MethodPost, "/api/management/tasks/sync:test/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodGet, "/api/management/logs?cursor=0&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hello")
}

func TestSettingsAreRedacted(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/management/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), mgmtKey)

	body := decode(t, w)
	assert.Equal(t, true, body["management_key_set"])
	validation, ok := body["validation"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, validation, "valid")
}
