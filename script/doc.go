// Package script hosts embedded JavaScript contexts bound to the bridge.
//
// Each Context owns one goja VM, one caller id, and one version namespace.
// Goja VMs are single-threaded, so every touch of the VM happens on the
// context's serial callback queue goroutine: script runs are enqueued there,
// and subscription events are delivered there by the bridge's event hub.
// Scripts see a host object named bridge with call, subscribe, and
// unsubscribe, plus a console whose log, warn, and error land in slog.
//
// bridge.call is synchronous from the script's point of view. Underneath it
// dispatches through the bridge and parks the queue goroutine on the pending
// request's completion, which the dispatcher always delivers, result, error,
// or timeout. Failed calls surface as thrown objects carrying the wire error
// shape, {kind, message}.
package script
