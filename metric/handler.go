package metric

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/pkg/security"
	"github.com/c360/bridgekit/pkg/tlsutil"
)

// Server exposes a MetricsRegistry over HTTP for Prometheus to scrape.
// The host runs Start in its own goroutine and calls Stop during shutdown;
// after Stop the server can be started again.
type Server struct {
	port     int
	path     string
	registry *MetricsRegistry
	security security.Config

	mu     sync.Mutex
	server *http.Server // non-nil while serving
}

// NewServer builds a metrics server for the given registry. A zero port
// defaults to 9090 and an empty path to /metrics.
func NewServer(port int, path string, registry *MetricsRegistry, securityCfg security.Config) *Server {
	if path == "" {
		path = "/metrics"
	}
	if port == 0 {
		port = 9090
	}

	return &Server{
		port:     port,
		path:     path,
		registry: registry,
		security: securityCfg,
	}
}

// Start serves the registry until Stop is called or the listener fails.
// A shutdown through Stop returns nil.
func (s *Server) Start() error {
	srv, err := s.configure()
	if err != nil {
		return err
	}

	if srv.TLSConfig != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Server", "Start",
			fmt.Sprintf("serve metrics on port %d", s.port))
	}
	return nil
}

// configure builds the HTTP server and records it under the lock so that
// Stop can reach it while Start is blocked serving.
func (s *Server) configure() (*http.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("server already running"),
			"Server", "Start", "metrics server is already running")
	}
	if s.registry == nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("nil registry"),
			"Server", "Start", "metrics registry not provided")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.routes(),
	}

	// The metrics listener follows the host-level TLS settings.
	if s.security.TLS.Server.Enabled {
		tlsConfig, err := tlsutil.LoadServerTLSConfig(s.security.TLS.Server)
		if err != nil {
			return nil, errors.WrapFatal(err, "Server", "Start", "load TLS config")
		}
		srv.TLSConfig = tlsConfig
	}

	s.server = srv
	return srv, nil
}

// routes wires the scrape endpoint plus the small operational surface
// exposed next to it.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintf(w, landingPage, s.path)
	})

	return mux
}

const landingPage = `<html>
<head><title>BridgeKit Metrics</title></head>
<body>
<h1>BridgeKit Metrics Server</h1>
<p><a href="%s">Metrics</a></p>
<p><a href="/health">Health</a></p>
</body>
</html>`

// Stop closes the server and frees it for a later restart.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	err := s.server.Close()
	s.server = nil
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop",
			"close metrics server")
	}
	return nil
}

// Address returns the URL the scrape endpoint is reachable at.
func (s *Server) Address() string {
	scheme := "http"
	if s.security.TLS.Server.Enabled {
		scheme = "https"
	}
	return fmt.Sprintf("%s://localhost:%d%s", scheme, s.port, s.path)
}
