package sim

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/cloudheal/internal/config"
	"github.com/ryandielhenn/cloudheal/internal/logger"
	"github.com/ryandielhenn/cloudheal/pkg/status"
)

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthzReflectsFleet(t *testing.T) {
	s := New(config.DefaultConfig(), logger.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	code, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	n3, _ := s.Node("Node-3")
	n3.Fail()
	code, body = get(t, srv, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "Node-3")

	code, _ = get(t, srv, "/nodes/Node-3/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = get(t, srv, "/nodes/Node-1/healthz")
	assert.Equal(t, http.StatusOK, code)
}

func TestNodesListsMonitorObservations(t *testing.T) {
	s := New(config.DefaultConfig(), logger.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	code, body := get(t, srv, "/nodes")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", body)

	n1, _ := s.Node("Node-1")
	n1.Fail()
	s.Monitor().Sweep(context.Background())

	code, body = get(t, srv, "/nodes")
	require.Equal(t, http.StatusOK, code)
	var snaps []status.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snaps))
	require.Len(t, snaps, 3)
	assert.Equal(t, "Node-1", snaps[0].ID)
	assert.True(t, snaps[0].Restarted)
	assert.False(t, snaps[1].Restarted)
}

func TestNodeInfoAndUnknownNode(t *testing.T) {
	s := New(config.DefaultConfig(), logger.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	code, body := get(t, srv, "/nodes/Node-2/info")
	require.Equal(t, http.StatusOK, code)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	assert.Equal(t, "Node-2", info["id"])
	assert.Equal(t, "running", info["state"])

	code, _ = get(t, srv, "/nodes/Node-9/info")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMetricsMounted(t *testing.T) {
	s := New(config.DefaultConfig(), logger.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	s.Monitor().Sweep(context.Background())
	code, body := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "cloudheal_sweeps_total")
	assert.Contains(t, body, `cloudheal_node_healthy{node="Node-1"}`)
}
