package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"hello-server/internal/events"
	"hello-server/internal/logger"
	"hello-server/internal/metrics"
	"hello-server/internal/worker"
)

func newTestServer(t *testing.T) (*Server, *worker.Pool, *metrics.Metrics, *events.Bus, *httptest.Server) {
	t.Helper()
	cfg := worker.DefaultPoolConfig()
	cfg.NumWorkers = 2
	cfg.Logger = logger.New(&bytes.Buffer{}, logger.LevelError)
	pool, err := worker.NewWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Stop)

	m := metrics.New()
	bus := events.NewBus()
	s := NewServer("127.0.0.1:0", pool, m, bus)
	s.statusInterval = 20 * time.Millisecond

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, pool, m, bus, ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHandleStatus(t *testing.T) {
	_, pool, _, _, ts := newTestServer(t)
	require.NoError(t, pool.Submit(worker.Func(func() {})))

	resp, body := get(t, ts.URL+"/api/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, 2, status.Pool.Workers)
	assert.Equal(t, "open", status.Pool.StateName)
	assert.Len(t, status.Pool.PerWorker, 2)
}

func TestHandleMetrics(t *testing.T) {
	_, _, m, _, ts := newTestServer(t)
	m.RecordSuccess(time.Millisecond)
	m.RecordFailure(time.Millisecond)

	resp, body := get(t, ts.URL+"/api/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, uint64(2), snap.TotalRequests)
	assert.Equal(t, uint64(1), snap.FailedRequests)
}

func TestHandleMethodNotAllowed(t *testing.T) {
	_, _, _, _, ts := newTestServer(t)

	for _, path := range []string{"/api/status", "/api/metrics"} {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader("{}"))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	_, pool, m, _, ts := newTestServer(t)
	require.NoError(t, pool.Submit(worker.Func(func() {})))
	m.RecordSuccess(time.Millisecond)

	resp, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	text := string(body)
	assert.Contains(t, text, "hello_pool_workers 2")
	assert.Contains(t, text, `hello_server_requests_total{result="success"} 1`)
	assert.Contains(t, text, `hello_pool_jobs_executed_total{worker="0"}`)
}

func TestWebSocketStream(t *testing.T) {
	s, _, _, bus, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, err := websocket.Dial(wsURL, "", "http://localhost/")
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.status().WSClients)

	bus.Publish(events.NewConnRejectedEvent("127.0.0.1:1234", worker.ErrPoolClosed))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var sawEvent, sawStatus bool
	for !(sawEvent && sawStatus) {
		var msg wsMessage
		require.NoError(t, websocket.JSON.Receive(ws, &msg))
		switch msg.Type {
		case "event":
			require.NotNil(t, msg.Event)
			assert.Equal(t, events.EventConnRejected, msg.Event.Type)
			assert.Equal(t, "127.0.0.1:1234", msg.Event.Source)
			sawEvent = true
		case "status":
			require.NotNil(t, msg.Status)
			assert.Equal(t, 2, msg.Status.Pool.Workers)
			sawStatus = true
		}
	}

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestNewServerWithoutOptionalParts(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, nil, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, body := get(t, ts.URL+"/api/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, uint64(0), snap.TotalRequests)

	resp, _ = get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
