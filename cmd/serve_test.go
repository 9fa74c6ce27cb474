package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landuse-cli/internal/schema"
	"github.com/sells-group/landuse-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestResolvePort(t *testing.T) {
	assert.Equal(t, 9090, resolvePort(9090, 8080))
	assert.Equal(t, 8080, resolvePort(0, 8080))
	assert.Equal(t, 0, resolvePort(0, 0))
}

func TestRouter_Health(t *testing.T) {
	rr := get(t, buildRouter(newTestStore(t), schema.Default()), "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRouter_Schema(t *testing.T) {
	rr := get(t, buildRouter(newTestStore(t), schema.Default()), "/schema")
	require.Equal(t, http.StatusOK, rr.Code)

	var cats []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cats))
	require.Len(t, cats, 8)
	assert.Equal(t, "drinking", cats[0]["key"])
}

func TestRouter_Runs(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	done, err := st.CreateRun(ctx, "oxford_street")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, done.ID, &store.RunResult{Landuses: 3, LiveNodes: 9}))
	failed, err := st.CreateRun(ctx, "nicosia")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, failed.ID, errors.New("overpass down")))

	h := buildRouter(st, schema.Default())

	rr := get(t, h, "/runs")
	require.Equal(t, http.StatusOK, rr.Code)
	var all []store.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rr = get(t, h, "/runs?status=failed")
	require.Equal(t, http.StatusOK, rr.Code)
	var onlyFailed []store.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &onlyFailed))
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, "nicosia", onlyFailed[0].LocationKey)
	assert.Equal(t, "overpass down", onlyFailed[0].Error)

	rr = get(t, h, "/runs/"+done.ID)
	require.Equal(t, http.StatusOK, rr.Code)
	var one store.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &one))
	assert.Equal(t, store.RunStatusComplete, one.Status)
	require.NotNil(t, one.Result)
	assert.Equal(t, 9, one.Result.LiveNodes)
}

func TestRouter_Metrics(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	done, err := st.CreateRun(ctx, "oxford_street")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, done.ID, &store.RunResult{Landuses: 10, Failed: []string{"retail"}}))

	h := buildRouter(st, schema.Default())
	rr := get(t, h, "/metrics?hours=1")
	require.Equal(t, http.StatusOK, rr.Code)

	var snap struct {
		RunsTotal        int            `json:"runs_total"`
		RunsComplete     int            `json:"runs_complete"`
		CategoryFailures map[string]int `json:"category_failures"`
		LookbackHours    int            `json:"lookback_hours"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, map[string]int{"retail": 1}, snap.CategoryFailures)
	assert.Equal(t, 1, snap.LookbackHours)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/metrics?hours=0").Code)
}

func TestRouter_RunsEmpty(t *testing.T) {
	rr := get(t, buildRouter(newTestStore(t), schema.Default()), "/runs?location=nowhere")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestRouter_RunNotFound(t *testing.T) {
	rr := get(t, buildRouter(newTestStore(t), schema.Default()), "/runs/missing")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

func TestRouter_BadFilter(t *testing.T) {
	h := buildRouter(newTestStore(t), schema.Default())
	for _, q := range []string{"status=queued", "limit=-1", "offset=abc"} {
		rr := get(t, h, "/runs?"+q)
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestRouter_CORS(t *testing.T) {
	h := buildRouter(newTestStore(t), schema.Default())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartServer_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := buildRouter(newTestStore(t), schema.Default())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close() //nolint:errcheck

	errCh := make(chan error, 1)
	go func() {
		errCh <- startServer(ctx, h, port)
	}()

	var ready bool
	for i := 0; i < 50; i++ {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err == nil {
			resp.Body.Close() //nolint:errcheck
			ready = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.True(t, ready, "server did not start")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
