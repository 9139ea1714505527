package permissions

import (
	"context"
	"time"
)

// Granter is the host boundary for the asynchronous grant flow. The
// implementation starts the platform's permission prompt for the given types
// and invokes grant with the resulting statuses. The callback may arrive
// from any goroutine; implementations should invoke it exactly once, and the
// module tolerates extras by dropping them.
type Granter interface {
	RequestPermissions(ctx context.Context, types []string, grant func(results map[string]Status)) error
}

// GranterFunc adapts a function to the Granter interface.
type GranterFunc func(ctx context.Context, types []string, grant func(results map[string]Status)) error

// RequestPermissions calls f.
func (f GranterFunc) RequestPermissions(ctx context.Context, types []string, grant func(results map[string]Status)) error {
	return f(ctx, types, grant)
}

// StaticGranter answers every ask with a fixed status per type. Results are
// delivered from a separate goroutine after an optional delay, matching how
// real platform prompts answer on their own threads. Useful for tests and
// headless hosts.
type StaticGranter struct {
	// Default is the status granted to types without a PerType entry.
	Default Status

	// PerType overrides the default for specific types.
	PerType map[string]Status

	// Delay postpones the grant callback.
	Delay time.Duration
}

// RequestPermissions resolves the ask asynchronously.
func (g *StaticGranter) RequestPermissions(ctx context.Context, types []string, grant func(results map[string]Status)) error {
	results := make(map[string]Status, len(types))
	for _, typ := range types {
		status, ok := g.PerType[typ]
		if !ok {
			status = g.Default
		}
		results[typ] = status
	}

	go func() {
		if g.Delay > 0 {
			select {
			case <-time.After(g.Delay):
			case <-ctx.Done():
				return
			}
		}
		grant(results)
	}()
	return nil
}
