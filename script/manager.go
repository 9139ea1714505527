package script

import (
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/bridgekit/errors"
)

// Manager owns the live script contexts of a host. Spawn hands out a
// context per scripting surface (one WebView, one worker); Close tears one
// down; CloseAll is the shutdown path.
type Manager struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu       sync.Mutex
	contexts map[string]*Context
	closed   bool
}

// NewManager validates cfg and returns an empty manager.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		logger:   logger.With("component", "ScriptManager"),
		contexts: make(map[string]*Context),
	}, nil
}

// Spawn opens a new context bound to namespace and tracks it.
func (m *Manager) Spawn(namespace string) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.WrapTransient(errors.ErrShuttingDown, "ScriptManager", "Spawn",
			"open context")
	}

	c, err := NewContext(namespace, m.cfg, m.deps)
	if err != nil {
		return nil, err
	}
	m.contexts[c.ID()] = c
	m.logger.Info("script context spawned", "caller", c.ID(), "namespace", namespace)
	return c, nil
}

// Get returns a tracked context by caller id.
func (m *Manager) Get(id string) (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[id]
	return c, ok
}

// Count returns the number of live contexts.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

// Close tears down one context by caller id.
func (m *Manager) Close(id string, timeout time.Duration) error {
	m.mu.Lock()
	c, ok := m.contexts[id]
	delete(m.contexts, id)
	m.mu.Unlock()
	if !ok {
		return errors.Newf(errors.KindNotFound, "ScriptManager", "Close",
			"no context %q", id)
	}
	return c.Close(timeout)
}

// CloseAll tears down every context, giving each up to timeout to drain.
// All contexts are attempted even when one fails.
func (m *Manager) CloseAll(timeout time.Duration) error {
	m.mu.Lock()
	m.closed = true
	all := make([]*Context, 0, len(m.contexts))
	for _, c := range m.contexts {
		all = append(all, c)
	}
	m.contexts = make(map[string]*Context)
	m.mu.Unlock()

	var errs []error
	for _, c := range all {
		if err := c.Close(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(stderrors.Join(errs...), "ScriptManager", "CloseAll",
			"close contexts")
	}
	m.logger.Info("script contexts closed", "count", len(all))
	return nil
}
