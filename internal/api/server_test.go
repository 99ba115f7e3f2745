package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/logging"
	"github.com/annel0/voxel-surface/internal/runtime"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

func newTestServer(t *testing.T) (*Server, *runtime.Scheduler) {
	t.Helper()
	reg := block.DefaultRegistry()
	cache := runtime.NewMeshCache()
	logger := logging.NewConsoleLogger("api", io.Discard, logging.ERROR)
	s := runtime.New(runtime.Options{
		Registry:  reg,
		World:     world.NewStore(8),
		Lighting:  lighting.DefaultConfig(),
		Workers:   1,
		QueueSize: 8,
		Sink:      cache,
		Logger:    logger,
	})
	t.Cleanup(s.Stop)

	srv := NewServer(Config{
		Service:    "voxel_api_test",
		Pipeline:   s,
		Meshes:     cache,
		Registry:   reg,
		Prometheus: prometheus.NewRegistry(),
		Logger:     logger,
	})
	return srv, s
}

func do(t *testing.T, srv *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var resp GenericResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	w, _ := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestStatsReportsLoadedChunks(t *testing.T) {
	srv, s := newTestServer(t)
	s.Load(world.NewChunk(vec.Vec3{}, 8))

	w, resp := do(t, srv, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["loaded"])
	assert.EqualValues(t, 1, data["workers"])
}

func TestChunkEndpoint(t *testing.T) {
	srv, s := newTestServer(t)
	s.Load(world.NewChunk(vec.Vec3{X: 1}, 8))

	w, resp := do(t, srv, http.MethodGet, "/api/v1/chunks/1/0/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	w, _ = do(t, srv, http.MethodGet, "/api/v1/chunks/2/0/0", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, srv, http.MethodGet, "/api/v1/chunks/a/0/0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = do(t, srv, http.MethodGet, "/api/v1/chunks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)
}

func TestEditBumpsGeometry(t *testing.T) {
	srv, s := newTestServer(t)
	s.Load(world.NewChunk(vec.Vec3{}, 8))
	before := s.Revisions().GeometryRev(vec.Vec3{})

	w, resp := do(t, srv, http.MethodPost, "/api/v1/edit", EditRequest{X: 1, Y: 2, Z: 3, Block: "stone"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, before+1, s.Revisions().GeometryRev(vec.Vec3{}))

	w, _ = do(t, srv, http.MethodPost, "/api/v1/edit", EditRequest{X: 1, Y: 2, Z: 3, Block: "unobtainium"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, srv, http.MethodPost, "/api/v1/edit", EditRequest{X: 100, Y: 2, Z: 3, Block: "stone"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMeshesAndMetricsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	w, resp := do(t, srv, http.MethodGet, "/api/v1/meshes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	w, _ = do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voxel_api_test_http_request_duration_seconds")
}

func TestUptimeFormat(t *testing.T) {
	sm := NewServerMetrics()
	assert.Regexp(t, `^\d+с$`, sm.GetUptime())
	assert.GreaterOrEqual(t, sm.Snapshot().Goroutines, 1)
}
