package metric

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/pkg/security"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port
}

func waitReachable(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server at %s never became reachable", url)
}

func TestNewServer_Defaults(t *testing.T) {
	registry := NewMetricsRegistry()

	srv := NewServer(0, "", registry, security.Config{})

	assert.Equal(t, 9090, srv.port)
	assert.Equal(t, "/metrics", srv.path)
	assert.Equal(t, "http://localhost:9090/metrics", srv.Address())
}

func TestServer_AddressSchemes(t *testing.T) {
	registry := NewMetricsRegistry()

	plain := NewServer(9100, "/metrics", registry, security.Config{})
	assert.Equal(t, "http://localhost:9100/metrics", plain.Address())

	tls := NewServer(9100, "/metrics", registry, security.Config{
		TLS: security.TLSConfig{
			Server: security.ServerTLSConfig{Enabled: true},
		},
	})
	assert.Equal(t, "https://localhost:9100/metrics", tls.Address())
}

func TestServer_Routes(t *testing.T) {
	registry := NewMetricsRegistry()

	calls := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bridgekit",
		Name:      "dispatch_calls_total",
		Help:      "Total bridge calls dispatched",
	})
	require.NoError(t, registry.RegisterCounter("dispatcher", "dispatch_calls_total", calls))
	calls.Add(3)

	srv := NewServer(9090, "/metrics", registry, security.Config{})
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	t.Run("scrape endpoint serves registered metrics", func(t *testing.T) {
		code, body := get("/metrics")
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, "bridgekit_dispatch_calls_total 3")
	})

	t.Run("health endpoint answers OK", func(t *testing.T) {
		code, body := get("/health")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "OK", body)
	})

	t.Run("landing page links to scrape path", func(t *testing.T) {
		code, body := get("/")
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, `href="/metrics"`)
		assert.Contains(t, body, "BridgeKit Metrics")
	})
}

func TestServer_StartRequiresRegistry(t *testing.T) {
	srv := NewServer(9090, "/metrics", nil, security.Config{})

	err := srv.Start()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), "metrics registry not provided")
}

func TestServer_StartStopRestart(t *testing.T) {
	port := freePort(t)
	registry := NewMetricsRegistry()
	srv := NewServer(port, "/metrics", registry, security.Config{})
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	waitReachable(t, healthURL)

	// A second Start while serving is rejected.
	err := srv.Start()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	require.NoError(t, srv.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err, "shutdown through Stop is not a serve failure")
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	// Stop frees the server for another round.
	go func() { done <- srv.Start() }()
	waitReachable(t, healthURL)

	require.NoError(t, srv.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("restarted server did not shut down")
	}
}

func TestServer_StopWithoutStart(t *testing.T) {
	srv := NewServer(9090, "/metrics", NewMetricsRegistry(), security.Config{})

	assert.NoError(t, srv.Stop())
	assert.NoError(t, srv.Stop())
}
