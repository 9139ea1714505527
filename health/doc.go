// Package health provides health monitoring for bridgekit hosts with
// thread-safe status tracking and aggregation across modules and
// infrastructure components.
//
// A running host has many moving parts: native modules registered in
// namespaces, the bridge dispatcher, script contexts, the WebSocket gateway,
// and the NATS connection. This package tracks the health of each and folds
// them into a single host-wide status for the gateway health endpoint and
// for operational logging.
//
// # Health States
//
// The package supports three health states:
//   - Healthy: component operating normally
//   - Degraded: component operating with reduced functionality
//   - Unhealthy: component not functioning properly
//
// The three-state model enables nuanced operational responses. A degraded
// settings module (KV writes slow but cache serving reads) warrants
// attention; an unhealthy dispatcher warrants immediate intervention.
//
// # Core Components
//
// Status: one component's health state with status level, descriptive
// message, timestamp, optional metrics, and hierarchical sub-statuses.
//
// Monitor: thread-safe tracking of multiple component statuses with
// concurrent read/write access and automatic timestamp management.
//
// Helpers: constructors for each state plus Aggregate for rolling
// sub-statuses up into one.
//
// # Basic Usage
//
//	monitor := health.NewMonitor()
//
//	monitor.UpdateHealthy("dispatcher", "workers idle")
//	monitor.UpdateDegraded("settings", "KV write latency above threshold")
//	monitor.UpdateUnhealthy("nats", "connection lost, reconnecting")
//
//	if status, exists := monitor.Get("dispatcher"); exists && status.IsHealthy() {
//	    log.Println("dispatcher is healthy")
//	}
//
// # Host-Wide Aggregation
//
//	hostHealth := monitor.AggregateHealth("bridgekit")
//	if hostHealth.IsUnhealthy() {
//	    log.Printf("host unhealthy: %s", hostHealth.Message)
//	}
//
// Aggregation rules:
//   - Any unhealthy component → host unhealthy
//   - Any degraded component (with no unhealthy) → host degraded
//   - All healthy → host healthy
//
// Sub-statuses in the aggregate are sorted by component name so repeated
// serialization of the same state produces identical output.
//
// # Module Integration
//
// Modules report module.HealthStatus from their Health method. Convert with
// FromModuleHealth, which names the status after the module and sanitizes
// the last error:
//
//	mh := mod.Health()
//	status := health.FromModuleHealth(mod.Meta().Name, mh)
//	monitor.Update(mod.Meta().Name, status)
//
// # Error Sanitization
//
// Error messages passed through FromModuleHealth are sanitized before they
// reach dashboards or logs:
//   - URLs: http://, https://, nats://, ws://, wss:// → [URL]
//   - File paths: /path/to/file, C:\path\to\file → [PATH]
//   - IP addresses: 192.168.1.100 → [IP]
//   - Ports: :8080 → [PORT]
//   - Credentials: password=X, token=X, key=X, secret=X → [REDACTED]
//
// Sanitization is not optional. Module authors write whatever error text is
// useful for debugging; the health surface strips what should not leave the
// process.
//
// # Thread Safety
//
// All Monitor operations are safe for concurrent use. The Monitor uses an
// RWMutex so reads proceed concurrently while writes are serialized. Status
// is a value type: WithMetrics and WithSubStatus return copies rather than
// mutating the receiver.
//
// # Design Decisions
//
// The package does not return errors because it represents the result of
// error handling, not a step in error propagation. Health status is an
// observability output.
//
// Aggregation is conservative: a single unhealthy component marks the whole
// host unhealthy so problems are never masked by the healthy majority.
package health
