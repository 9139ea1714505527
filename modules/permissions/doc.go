// Package permissions implements the permission query and grant capability
// module.
//
// The module tracks a status (granted, denied, or undetermined) per known
// permission type and exposes two methods: get reads current statuses, ask
// runs the grant flow through a host-supplied Granter. The granter delivers
// its results through a callback that may fire from any goroutine; the
// module accepts the first delivery and drops the rest. Hosts that bind no
// granter still serve get, but ask fails with ErrNoGranter.
package permissions
