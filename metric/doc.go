// Package metric provides Prometheus-based metrics collection and HTTP server
// for BridgeKit host monitoring and observability.
//
// The package offers a centralized metrics registry managing both core bridge
// metrics (module status, dispatch throughput, NATS health) and custom
// module-specific metrics. It includes an HTTP server exposing metrics in
// Prometheus format for monitoring system integration.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: Bridge-level metrics automatically registered (Metrics type)
//  2. Module Registry: Extensible registration for module-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: Metrics endpoint with health checks (Server type)
//
// This architecture separates infrastructure concerns (core metrics) from
// module concerns (module-specific metrics) while providing a unified
// metrics endpoint for monitoring systems.
//
// # Basic Usage
//
// Setting up metrics collection and HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	securityCfg := security.Config{} // Host security config
//	server := metric.NewServer(9090, "/metrics", registry, securityCfg)
//
//	go func() {
//	    if err := server.Start(); err != nil && err != http.ErrServerClosed {
//	        log.Printf("Metrics server error: %v", err)
//	    }
//	}()
//
//	// Record core bridge metrics
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordModuleStatus("Settings", 2)
//	coreMetrics.RecordInvocation("v1", "Settings", "get")
//	coreMetrics.RecordNATSStatus(true)
//
// The metrics server will expose Prometheus-formatted metrics at http://localhost:9090/metrics
// and a health check at http://localhost:9090/health.
//
// # Core Metrics
//
// The package automatically registers core bridge metrics tracking:
//
//   - Module lifecycle: module_status (0=created, 1=initialized, 2=started, 3=stopped, 4=failed)
//   - Dispatch throughput: invocations_total, completions_total
//   - Dispatch performance: duration_seconds, callback_queue_depth
//   - Event delivery: emitted_total, subscriptions_active
//   - NATS connectivity: nats_connected, nats_rtt_milliseconds, nats_reconnects_total
//   - Error tracking: errors_total by component and kind
//
// Access core metrics through the registry:
//
//	coreMetrics := registry.CoreMetrics()
//
//	// Module lifecycle tracking
//	coreMetrics.RecordModuleStatus("Settings", 2) // 2 = started
//	coreMetrics.RecordHealthStatus("Settings", true)
//
//	// Dispatch metrics
//	coreMetrics.RecordInvocation("v1", "Settings", "get")
//	coreMetrics.RecordCompletion("v1", "Settings", "get", "ok")
//	coreMetrics.RecordDispatchDuration("v1", "Settings", "get", 4*time.Millisecond)
//
//	// Event delivery
//	coreMetrics.RecordEventEmitted("v1", "Settings", "settingsChanged")
//	coreMetrics.RecordSubscriptions("v1", "Settings", 3)
//
//	// NATS connectivity
//	coreMetrics.RecordNATSStatus(true)
//	coreMetrics.RecordNATSRTT(2 * time.Millisecond)
//
//	// Error tracking
//	coreMetrics.RecordError("Dispatcher", "TypeMismatch")
//
// # Module-Specific Metrics
//
// Modules can register custom metrics through the registry:
//
//	// Register a counter
//	watchCounter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "settings_watches_total",
//	    Help: "Total number of settings watch registrations",
//	})
//	err := registry.RegisterCounter("Settings", "settings_watches_total", watchCounter)
//
//	// Register a gauge
//	activeWatches := prometheus.NewGauge(prometheus.GaugeOpts{
//	    Name: "settings_watches_active",
//	    Help: "Number of active settings watches",
//	})
//	err = registry.RegisterGauge("Settings", "settings_watches_active", activeWatches)
//
//	// Register a histogram
//	storeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
//	    Name:    "settings_store_duration_seconds",
//	    Help:    "Time spent reading and writing the settings store",
//	    Buckets: prometheus.DefBuckets,
//	})
//	err = registry.RegisterHistogram("Settings", "settings_store_duration_seconds", storeLatency)
//
// # Vector Metrics with Labels
//
// Register metrics with labels for multi-dimensional data:
//
//	// Counter with labels
//	permissionChecks := prometheus.NewCounterVec(
//	    prometheus.CounterOpts{
//	        Name: "permission_checks_total",
//	        Help: "Total permission checks by type and outcome",
//	    },
//	    []string{"permission", "status"},
//	)
//	err := registry.RegisterCounterVec("Permissions", "permission_checks_total", permissionChecks)
//
//	// Use the metric with specific label values
//	permissionChecks.WithLabelValues("camera", "granted").Inc()
//	permissionChecks.WithLabelValues("location", "denied").Inc()
//
// # HTTP Server
//
// The metrics server provides three endpoints:
//
//   - GET / - HTML page with links to metrics and health endpoints
//   - GET /metrics - Prometheus-formatted metrics (default path, configurable)
//   - GET /health - JSON health check response
//
// Server configuration:
//
//	// Default configuration (port 9090, path /metrics)
//	securityCfg := security.Config{} // Host security config
//	server := metric.NewServer(0, "", registry, securityCfg)
//
//	// Custom configuration
//	server := metric.NewServer(8080, "/prometheus", registry, securityCfg)
//
//	// Start server (blocking)
//	if err := server.Start(); err != nil {
//	    log.Fatalf("Failed to start metrics server: %v", err)
//	}
//
//	// Stop server (in another goroutine)
//	if err := server.Stop(); err != nil {
//	    log.Printf("Error stopping server: %v", err)
//	}
//
// Health endpoint response format:
//
//	{
//	    "status": "healthy",
//	    "timestamp": "2024-01-15T10:30:00Z"
//	}
//
// # Prometheus Integration
//
// The package uses the official Prometheus Go client library and exposes
// metrics in OpenMetrics format. Configure Prometheus to scrape the endpoint:
//
//	# prometheus.yml
//	scrape_configs:
//	  - job_name: 'bridgekit'
//	    static_configs:
//	      - targets: ['localhost:9090']
//	    metrics_path: '/metrics'
//	    scrape_interval: 15s
//
// All core metrics use the namespace "bridgekit" and appropriate subsystems:
//   - bridgekit_module_status{module="..."}
//   - bridgekit_dispatch_invocations_total{namespace="...",module="...",method="..."}
//   - bridgekit_nats_connected
//
// Module-specific metrics use the metric name as provided during registration.
//
// # MetricsRegistrar Interface
//
// Modules implement against the MetricsRegistrar interface for dependency injection:
//
//	type SettingsModule struct {
//	    metrics metric.MetricsRegistrar
//	}
//
//	func NewSettingsModule(metrics metric.MetricsRegistrar) *SettingsModule {
//	    counter := prometheus.NewCounter(prometheus.CounterOpts{
//	        Name: "settings_writes_total",
//	        Help: "Total settings writes",
//	    })
//	    metrics.RegisterCounter("Settings", "settings_writes_total", counter)
//
//	    return &SettingsModule{metrics: metrics}
//	}
//
// This enables testing with mock registrars and provides loose coupling.
//
// # Thread Safety
//
// All registry operations are thread-safe:
//   - Registration methods use mutex protection
//   - Metric recording is lock-free (Prometheus guarantee)
//   - CoreMetrics() returns a thread-safe shared instance
//   - PrometheusRegistry() is safe for concurrent access
//
// Example concurrent usage:
//
//	registry := metric.NewMetricsRegistry()
//	coreMetrics := registry.CoreMetrics()
//
//	// Safe to call from multiple goroutines
//	go coreMetrics.RecordInvocation("v1", "Settings", "get")
//	go coreMetrics.RecordInvocation("v1", "Orientation", "lockTo")
//	go coreMetrics.RecordInvocation("v2", "Settings", "setBatch")
//
// # Error Handling
//
// Registration methods return errors for:
//
//   - Duplicate registration: attempting to register same metric name twice
//   - Prometheus conflicts: internal Prometheus registration failures
//   - Validation errors: nil metrics or invalid parameters
//
// Example error handling:
//
//	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test"})
//	err := registry.RegisterCounter("Settings", "test", counter)
//	if err != nil {
//	    // Check for duplicate registration
//	    if strings.Contains(err.Error(), "already registered") {
//	        log.Printf("Metric already registered, skipping")
//	    } else {
//	        log.Fatalf("Failed to register metric: %v", err)
//	    }
//	}
//
// The Server.Start() method returns errors for:
//
//   - Server already running
//   - Nil registry
//   - HTTP server failures (port in use, permission denied)
//
// # Architecture Integration
//
// The metric package integrates with BridgeKit components:
//
//   - bridge: Dispatcher records invocation, completion, and queue depth metrics
//   - module: Managed lifecycle transitions mirror into module_status
//   - natsclient: NATS client records connectivity and JetStream metrics
//   - health: Health status is mirrored into health_status gauges
//
// Data flow:
//
//	Dispatcher → Core Metrics → Prometheus Registry → HTTP Server → Prometheus
//
// # Design Decisions
//
// Centralized Registry: Chose centralized registry over distributed collectors
// to ensure consistent metric namespace, prevent duplication, and enable
// runtime metric discovery.
//
// Core vs Module Metrics: Separated bridge-level metrics (core) from
// module-specific metrics to distinguish host health from module health.
//
// Prometheus Direct Integration: Used official Prometheus client rather than
// abstraction to leverage native features, avoid wrapper overhead, and ensure
// compatibility with Prometheus ecosystem.
//
// No Context in Server.Start(): Current design uses blocking Start() without
// context. Future enhancement could add context-aware lifecycle management.
package metric
