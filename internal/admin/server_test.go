package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/discord-shim-go/internal/stats"
)

type staticRows []stats.Row

func (r staticRows) Rows() []stats.Row { return r }

func newTestServer() *Server {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test counter"})
	reg.MustRegister(c)
	c.Inc()

	return NewServer("127.0.0.1:0", staticRows{
		{Addr: "10.0.0.1:1", Messages: 2, Bytes: 30},
	}, reg)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := get(t, newTestServer().Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["sessions"])
}

func TestSessions(t *testing.T) {
	h := newTestServer().Handler()

	w := get(t, h, "/sessions")
	assert.Equal(t, http.StatusOK, w.Code)
	var rows []stats.Row
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Equal(t, []stats.Row{{Addr: "10.0.0.1:1", Messages: 2, Bytes: 30}}, rows)

	w = get(t, h, "/sessions.csv")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ip,num_messages,total_data\n10.0.0.1:1,2,30\n", w.Body.String())
}

func TestMetrics(t *testing.T) {
	w := get(t, newTestServer().Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_total 1")
}

func TestServeListenerShutdown(t *testing.T) {
	s := newTestServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
