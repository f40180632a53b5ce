package dashboard_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsunset/dbsunset/internal/dashboard"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

func newTestServer(t *testing.T, registry *worklog.Registry, store *worklog.Store) *httptest.Server {
	t.Helper()

	server, err := dashboard.NewServer(registry, store, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return ts
}

func TestServer_Index(t *testing.T) {
	t.Parallel()

	registry := worklog.NewRegistry()
	registry.Get("wf-live").Appendf("running")

	store := worklog.NewStore(t.TempDir(), false)
	_, err := store.Save(populatedLog(t))
	require.NoError(t, err)

	ts := newTestServer(t, registry, store)

	resp, err := http.Get(ts.URL + "/workflows")
	require.NoError(t, err)

	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var index struct {
		Workflows []string `json:"workflows"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&index))
	assert.Equal(t, []string{"wf-live", "wf-render"}, index.Workflows)
}

func TestServer_Snapshot(t *testing.T) {
	t.Parallel()

	registry := worklog.NewRegistry()
	log := registry.Get("wf-live")
	log.Appendf("first")
	log.Appendf("second")

	ts := newTestServer(t, registry, nil)

	resp, err := http.Get(ts.URL + "/workflows/wf-live")
	require.NoError(t, err)

	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var entries []map[string]any

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.EqualValues(t, 1, entries[0]["entry_id"])
	assert.Equal(t, "text", entries[0]["kind"])
}

func TestServer_SnapshotFromStore(t *testing.T) {
	t.Parallel()

	store := worklog.NewStore(t.TempDir(), true)
	_, err := store.Save(populatedLog(t))
	require.NoError(t, err)

	ts := newTestServer(t, nil, store)

	resp, err := http.Get(ts.URL + "/workflows/wf-render")
	require.NoError(t, err)

	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []map[string]any

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	assert.Len(t, entries, 4)
}

func TestServer_Dashboard(t *testing.T) {
	t.Parallel()

	registry := worklog.NewRegistry()
	registry.Get("wf-live").Appendf("hello")

	ts := newTestServer(t, registry, nil)

	resp, err := http.Get(ts.URL + "/workflows/wf-live/dashboard")
	require.NoError(t, err)

	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestServer_UnknownWorkflow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, worklog.NewRegistry(), nil)

	for _, path := range []string{
		"/workflows/nope",
		"/workflows/nope/dashboard",
		"/workflows/nope/events",
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestServer_HealthEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
