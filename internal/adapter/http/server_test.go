package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/flood-inundation/internal/adapter/http"
	"github.com/couchcryptid/flood-inundation/internal/config"
	"github.com/couchcryptid/flood-inundation/internal/domain"
	"github.com/couchcryptid/flood-inundation/internal/observability"
)

type mockRunner struct {
	readyErr error
	err      error

	mu      sync.Mutex
	got     []domain.RunRequest
	block   chan struct{}
	started chan struct{}
}

func (m *mockRunner) CheckReadiness(_ context.Context) error { return m.readyErr }

func (m *mockRunner) Compute(_ context.Context, req domain.RunRequest) (domain.RunSummary, error) {
	m.mu.Lock()
	m.got = append(m.got, req)
	m.mu.Unlock()
	if m.started != nil {
		close(m.started)
	}
	if m.block != nil {
		<-m.block
	}
	if m.err != nil {
		return domain.RunSummary{}, m.err
	}
	return domain.RunSummary{ID: req.ID(), OutputPath: req.OutputPath, InundatedCells: 42}, nil
}

type mockRuns struct {
	runs  []domain.RunSummary
	limit int
}

func (m *mockRuns) Recent(_ context.Context, limit int) ([]domain.RunSummary, error) {
	m.limit = limit
	return m.runs, nil
}

func (m *mockRuns) Lookup(_ context.Context, id string) (domain.RunSummary, bool, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, true, nil
		}
	}
	return domain.RunSummary{}, false, nil
}

var dataDir = filepath.Join(string(filepath.Separator), "srv", "flood")

func testConfig() *config.Config {
	return &config.Config{HTTPAddr: ":0", DefaultEPSG: 28992, ExtrapolationFactor: 0.5, DataDir: dataDir}
}

func newTestServer(runner *mockRunner, runs httpadapter.RunLister) *httpadapter.Server {
	return httpadapter.NewServer(testConfig(), runner, runs, observability.DiscardLogger())
}

func do(t *testing.T, srv http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	srv.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

const validJob = `{"result_path": "model_map.nc", "terrain_path": "dtm.tif", "output_path": "out.tif", "start": "2021/07/14", "filter": true}`

func TestHealthzReturns200(t *testing.T) {
	rec, body := do(t, newTestServer(&mockRunner{}, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec, body := do(t, newTestServer(&mockRunner{}, nil), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(&mockRunner{readyErr: fmt.Errorf("run in progress for 3h0m0s")}, nil)
	rec, body := do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "run in progress for 3h0m0s", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec, _ := do(t, newTestServer(&mockRunner{}, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRunReturnsSummary(t *testing.T) {
	runner := &mockRunner{}
	rec, body := do(t, newTestServer(runner, nil), http.MethodPost, "/runs", validJob)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, filepath.Join(dataDir, "out.tif"), body["output_path"])
	assert.EqualValues(t, 42, body["inundated_cells"])

	require.Len(t, runner.got, 1)
	req := runner.got[0]
	assert.Equal(t, filepath.Join(dataDir, "model_map.nc"), req.ResultPath)
	assert.Equal(t, filepath.Join(dataDir, "dtm.tif"), req.TerrainPath)
	assert.True(t, req.Filter)
	assert.True(t, req.Extrapolate)
	assert.Equal(t, 28992, req.DefaultEPSG)
	assert.Equal(t, 2021, req.Window.Start.Year())
}

func TestRunRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"result_path":`},
		{"unknown field", `{"result_path": "a.nc", "bogus": 1}`},
		{"missing paths", `{"result_path": "a.nc"}`},
		{"bad quantity", `{"result_path": "a.nc", "terrain_path": "d.tif", "output_path": "o.tif", "quantity": "velocity"}`},
		{"reversed window", `{"result_path": "a.nc", "terrain_path": "d.tif", "output_path": "o.tif", "start": "2021/07/15", "end": "2021/07/14"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{}
			rec, body := do(t, newTestServer(runner, nil), http.MethodPost, "/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, body["error"])
			assert.Empty(t, runner.got)
		})
	}
}

func TestRunConfinesPathsToDataDir(t *testing.T) {
	job := func(field, path string) string {
		paths := map[string]string{
			"result_path":  "model_map.nc",
			"terrain_path": "dtm.tif",
			"output_path":  "out.tif",
		}
		paths[field] = path
		b, err := json.Marshal(paths)
		require.NoError(t, err)
		return string(b)
	}

	rejected := []struct {
		field, path string
	}{
		{"output_path", "../out.tif"},
		{"output_path", "/etc/cron.d/inundation"},
		{"result_path", "models/../../model_map.nc"},
		{"terrain_path", filepath.Join(dataDir+"-other", "dtm.tif")},
		{"bounding_area_path", "/tmp/areas.shp"},
	}
	for _, tt := range rejected {
		t.Run(tt.field+" "+tt.path, func(t *testing.T) {
			runner := &mockRunner{}
			rec, body := do(t, newTestServer(runner, nil), http.MethodPost, "/runs", job(tt.field, tt.path))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, body["error"], "outside the data directory")
			assert.Empty(t, runner.got)
		})
	}

	runner := &mockRunner{}
	inside := filepath.Join(dataDir, "models", "map.nc")
	rec, _ := do(t, newTestServer(runner, nil), http.MethodPost, "/runs", job("result_path", inside))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, runner.got, 1)
	assert.Equal(t, inside, runner.got[0].ResultPath)
}

func TestRunMapsComputeErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("extract: %w", domain.ErrUnknownQuantity), http.StatusBadRequest},
		{fmt.Errorf("extract: %w", domain.ErrInvalidTimeWindow), http.StatusBadRequest},
		{fmt.Errorf("merge: %w", domain.ErrNoInundationComputed), http.StatusUnprocessableEntity},
		{fmt.Errorf("write: %w", domain.ErrIO), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec, body := do(t, newTestServer(&mockRunner{err: tt.err}, nil), http.MethodPost, "/runs", validJob)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	runner := &mockRunner{block: make(chan struct{}), started: make(chan struct{})}
	srv := newTestServer(runner, nil)

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(validJob)))
		done <- rec.Code
	}()
	<-runner.started

	rec, _ := do(t, srv, http.MethodPost, "/runs", validJob)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(runner.block)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestRunHistory(t *testing.T) {
	runs := &mockRuns{runs: []domain.RunSummary{{ID: "run-b"}, {ID: "run-a"}}}
	srv := newTestServer(&mockRunner{}, runs)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)
	assert.Equal(t, 5, runs.limit)

	rec, body := do(t, srv, http.MethodGet, "/runs/run-a", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-a", body["id"])

	rec, _ = do(t, srv, http.MethodGet, "/runs/run-z", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, srv, http.MethodGet, "/runs?limit=lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunHistoryDisabledWithoutLedger(t *testing.T) {
	rec, _ := do(t, newTestServer(&mockRunner{}, nil), http.MethodGet, "/runs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
