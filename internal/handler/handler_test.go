package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memoryKV) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.data))
	m.data = make(map[string]string)
	return n, nil
}

type fixture struct {
	server *httptest.Server
	base   string
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	base := t.TempDir()
	ws := filepath.Join(base, "service")
	require.NoError(t, os.MkdirAll(ws, 0o755))
	files := map[string]string{
		"auth.py":  "import jwt\n\ndef authenticate_user(name, password):\n    token = jwt.encode(name)\n    return token\n",
		"utils.py": "def hash_password(p):\n    return p\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(ws, name), []byte(content), 0o644))
	}

	reports := store.NewMemory()
	runner := research.NewRunner(research.WithObserver(store.NewRecorder(reports)))
	var rc *cache.ReportCache
	if withCache {
		rc = cache.New(&memoryKV{data: make(map[string]string)}, time.Minute, nil)
	}
	h := New(runner, rc, reports, Options{
		Defaults:  config.DefaultResearch(),
		Workspace: config.DefaultWorkspace(),
		BaseDir:   base,
	})
	mux := http.NewServeMux()
	h.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{server: srv, base: base}
}

func (f *fixture) post(t *testing.T, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+"/api/v1/research", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestResearchRunsAndCaches(t *testing.T) {
	f := newFixture(t, true)
	body := map[string]any{"query": "authentication", "workspace": "service", "max_iterations": 1}

	resp := f.post(t, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	first := decode[research.Report](t, resp)
	assert.NotEmpty(t, first.RunID)
	require.NotEmpty(t, first.TopResults)
	assert.Equal(t, "auth.py", first.TopResults[0].Path)

	resp = f.post(t, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	second := decode[research.Report](t, resp)
	assert.Equal(t, first.RunID, second.RunID)

	stats, err := http.Get(f.server.URL + "/api/v1/cache/stats")
	require.NoError(t, err)
	defer stats.Body.Close()
	got := decode[map[string]any](t, stats)
	assert.Equal(t, float64(1), got["hits"])
}

func TestResearchValidation(t *testing.T) {
	f := newFixture(t, false)
	tests := []struct {
		name   string
		body   any
		status int
		substr string
	}{
		{"missing query", map[string]any{"workspace": "service"}, http.StatusBadRequest, "query"},
		{"zero iterations", map[string]any{"query": "auth", "workspace": "service", "max_iterations": 0}, http.StatusBadRequest, "invalid config"},
		{"unknown strategy", map[string]any{"query": "auth", "workspace": "service", "strategies": []string{"telepathy"}}, http.StatusBadRequest, "telepathy"},
		{"missing workspace dir", map[string]any{"query": "auth", "workspace": "nope"}, http.StatusBadRequest, "invalid config"},
		{"outside base", map[string]any{"query": "auth", "workspace": "../../etc"}, http.StatusForbidden, "outside"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			got := decode[map[string]string](t, resp)
			assert.Contains(t, got["error"], tt.substr)
		})
	}
}

func TestResearchRejectsMalformedBody(t *testing.T) {
	f := newFixture(t, false)
	resp, err := http.Post(f.server.URL+"/api/v1/research", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReportsCanBeFetchedAndListed(t *testing.T) {
	f := newFixture(t, false)
	resp := f.post(t, map[string]any{"query": "password", "workspace": "service", "max_iterations": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rep := decode[research.Report](t, resp)

	got, err := http.Get(f.server.URL + "/api/v1/research/" + rep.RunID)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, rep.RunID, decode[research.Report](t, got).RunID)

	missing, err := http.Get(f.server.URL + "/api/v1/research/does-not-exist")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	list, err := http.Get(f.server.URL + "/api/v1/research?limit=5")
	require.NoError(t, err)
	defer list.Body.Close()
	body := decode[map[string][]store.Summary](t, list)
	require.Len(t, body["reports"], 1)
	assert.Equal(t, rep.RunID, body["reports"][0].RunID)

	bad, err := http.Get(f.server.URL + "/api/v1/research?limit=-1")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	f := newFixture(t, false)
	stats, err := http.Get(f.server.URL + "/api/v1/cache/stats")
	require.NoError(t, err)
	defer stats.Body.Close()
	assert.Equal(t, "disabled", decode[map[string]string](t, stats)["status"])

	inv, err := http.Post(f.server.URL+"/api/v1/cache/invalidate", "application/json", nil)
	require.NoError(t, err)
	defer inv.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, inv.StatusCode)
}

func TestResolveWorkspaceWithoutBase(t *testing.T) {
	h := New(nil, nil, nil, Options{})
	_, err := h.resolveWorkspace("relative/dir")
	assert.Error(t, err)
	_, err = h.resolveWorkspace("")
	assert.Error(t, err)
	root, err := h.resolveWorkspace("/srv/repo/../repo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/srv/repo"), root)
}
