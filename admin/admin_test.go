package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazyfrankie/grpcbus/bridge"
	"github.com/crazyfrankie/grpcbus/discovery/memory"
	"github.com/crazyfrankie/grpcbus/metrics"
	"github.com/crazyfrankie/grpcbus/server"
)

type staticSessions []bridge.Session

func (s staticSessions) Sessions() []bridge.Session { return s }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthz(t *testing.T) {
	w := get(t, NewHandler(), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewCollector(reg, nil)
	require.NoError(t, err)

	w := get(t, NewHandler(WithGatherer(reg)), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "grpcbus_calls_active")
}

func TestConnections(t *testing.T) {
	sessions := staticSessions{{
		ID:   1,
		Peer: "127.0.0.1:5555",
		Connections: []server.ConnectionInfo{
			{Endpoint: "greeter", Service: "mock.Greeter", ServiceIDs: []int32{1, 2}, Calls: 3},
		},
	}}

	w := get(t, NewHandler(WithSessions(sessions)), "/debug/connections")
	assert.Equal(t, http.StatusOK, w.Code)

	var got []bridge.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []bridge.Session(sessions), got)

	w = get(t, NewHandler(), "/debug/connections")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestLatency(t *testing.T) {
	w := get(t, NewHandler(), "/debug/latency")
	assert.Equal(t, http.StatusNotFound, w.Code)

	l := metrics.NewLatency(8)
	l.Add(10 * time.Millisecond)
	l.Add(30 * time.Millisecond)

	w = get(t, NewHandler(WithLatency(l)), "/debug/latency")
	assert.Equal(t, http.StatusOK, w.Code)

	var got metrics.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Count)
	assert.InDelta(t, 20, got.Mean, 0.001)
}

func TestAliases(t *testing.T) {
	w := get(t, NewHandler(), "/debug/aliases")
	assert.JSONEq(t, `{}`, w.Body.String())

	r := memory.NewResolver(map[string]string{"greeter": "localhost:50051"})
	h := NewHandler(WithAliases(r))
	w = get(t, h, "/debug/aliases")
	assert.JSONEq(t, `{"greeter":"localhost:50051"}`, w.Body.String())

	r.Update(map[string]string{"echo": "localhost:50052"})
	w = get(t, h, "/debug/aliases")
	assert.JSONEq(t, `{"echo":"localhost:50052"}`, w.Body.String())
}
