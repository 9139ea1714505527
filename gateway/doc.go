// Package gateway exposes the bridge to remote callers over WebSocket.
//
// A client attaches to one version namespace:
//
//	GET /bridge/v1/attach?namespace=v1
//
// Each connection is one caller: it gets its own caller id, its own serial
// callback queue for event delivery, and its own frame rate limiter. Frames
// are JSON text messages.
//
// Client frames:
//
//	{"op": "invoke", "id": "1", "module": "Settings", "method": "get", "args": ["theme"], "timeout_ms": 5000}
//	{"op": "subscribe", "id": "2", "module": "Settings", "event": "settingsDidChange"}
//	{"op": "unsubscribe", "id": "3", "subscription": "<subscription id>"}
//
// Server frames:
//
//	{"op": "result", "id": "1", "result": ...}
//	{"op": "result", "id": "2", "subscription": "<subscription id>"}
//	{"op": "error", "id": "1", "error": {"kind": "module_not_found", "message": "..."}}
//	{"op": "event", "subscription": "<id>", "module": "Settings", "event": "settingsDidChange", "payload": ...}
//
// Invocations dispatch under the connection's caller id, so per-module
// ordering and duplicate-suppression hold per connection exactly as they do
// for embedded script contexts. Event frames for one connection are written
// in subscription order because delivery runs on the connection's callback
// queue. Detaching cancels every subscription the connection holds.
package gateway
