// Package types contains shared domain types used across the bridgekit host
package types

// HostMeta provides host identity to modules and services. This structure
// decouples identity from the config package so components can log and
// publish under the right org and host without importing configuration.
type HostMeta struct {
	Org  string // Organization namespace (e.g., "c360")
	Host string // Host identifier (e.g., "demo-app", "kiosk-7")
}
