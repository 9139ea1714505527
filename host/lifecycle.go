package host

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/bridgekit/bridge"
	"github.com/c360/bridgekit/config"
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/gateway"
	"github.com/c360/bridgekit/health"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/moduleregistry"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/script"
	"github.com/c360/bridgekit/types"
)

const (
	natsConnectTimeout    = 10 * time.Second
	healthRefreshInterval = 15 * time.Second
)

// Start brings the host up: NATS and the config manager when enabled, module
// registration into every namespace, the table freeze, and then the
// dispatcher, modules, script manager, gateway, and metrics server. Any
// failure rolls back the components already started and returns the original
// error; registration failures are fatal-class.
//
// The context bounds the lifetime of dispatcher workers and module
// background work. Cancel it only after Stop has drained, or queued
// invocations are abandoned instead of failed cleanly.
func (h *Host) Start(ctx context.Context) error {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return errors.Wrap(errors.ErrAlreadyStarted, "Host", "Start", "start host")
	}
	if h.stopped {
		h.mu.Unlock()
		return errors.Wrap(errors.ErrShuttingDown, "Host", "Start", "restart stopped host")
	}
	h.mu.Unlock()

	h.logger.Info("starting host",
		"org", h.cfg.GetOrg(),
		"instance", h.cfg.GetInstance(),
		"namespaces", h.cfg.Namespaces)

	if err := h.startComponents(ctx); err != nil {
		h.logger.Error("host startup failed, rolling back", "error", err)
		for _, terr := range h.teardown(h.shutdownTimeout) {
			h.logger.Warn("rollback error", "error", terr)
		}
		// The namespace table may hold partial registrations; this host
		// cannot be started again.
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
		return err
	}

	h.refreshHealth()

	h.mu.Lock()
	h.started = true
	gw := h.gw
	h.mu.Unlock()

	h.logger.Info("host started",
		"gateway", gw.Address(),
		"modules", len(h.modules),
		"nats", h.cfg.NATS.Enabled)
	return nil
}

func (h *Host) startComponents(ctx context.Context) error {
	if h.cfg.NATS.Enabled {
		if err := h.connectNATS(ctx); err != nil {
			return err
		}
		if err := h.startConfigManager(ctx); err != nil {
			return err
		}
	}

	if err := h.registerModules(); err != nil {
		return err
	}
	for _, hook := range h.hooks {
		adopted, err := hook(h.table)
		if err != nil {
			return errors.WrapFatal(err, "Host", "Start", "custom module registration")
		}
		// Built-ins come back from RegisterAll already initialized; hook
		// modules are raw and get the same treatment here.
		for _, m := range adopted {
			if err := m.Initialize(); err != nil {
				return errors.WrapFatal(err, "Host", "Start",
					"initialize custom module "+m.Meta().Name)
			}
		}
		h.adoptModules("", adopted)
	}
	h.table.FreezeAll()
	h.logger.Info("namespace table frozen", "modules", len(h.modules))

	var inspector *bridge.Inspector
	if h.natsClient != nil {
		insp, err := bridge.NewInspector(h.natsClient, h.hostMeta(),
			bridge.DefaultInspectorConfig(), h.baseLogger, h.metrics)
		if err != nil {
			return errors.Wrap(err, "Host", "Start", "create inspector")
		}
		if err := insp.Start(); err != nil {
			return errors.Wrap(err, "Host", "Start", "start inspector")
		}
		inspector = insp
		h.mu.Lock()
		h.inspector = insp
		h.mu.Unlock()
	}

	dispatcher, err := bridge.NewDispatcher(h.cfg.Bridge, bridge.Deps{
		Table:     h.table,
		Logger:    h.baseLogger,
		Metrics:   h.metrics,
		Registry:  h.registry,
		Inspector: inspector,
	})
	if err != nil {
		return errors.Wrap(err, "Host", "Start", "create dispatcher")
	}
	if err := dispatcher.Start(ctx); err != nil {
		return errors.Wrap(err, "Host", "Start", "start dispatcher")
	}
	h.mu.Lock()
	h.dispatcher = dispatcher
	h.mu.Unlock()

	if err := h.startModules(ctx); err != nil {
		return err
	}

	scripts, err := script.NewManager(h.cfg.Script, script.Deps{
		Dispatcher: dispatcher,
		Hub:        h.hub,
		Logger:     h.baseLogger,
		Metrics:    h.metrics,
	})
	if err != nil {
		return errors.Wrap(err, "Host", "Start", "create script manager")
	}
	h.mu.Lock()
	h.scripts = scripts
	h.mu.Unlock()

	gw, err := gateway.New(h.cfg.Gateway, gateway.Deps{
		Dispatcher: dispatcher,
		Hub:        h.hub,
		Table:      h.table,
		Logger:     h.baseLogger,
		Metrics:    h.metrics,
		Registry:   h.registry,
		Security:   h.cfg.Security,
	})
	if err != nil {
		return errors.Wrap(err, "Host", "Start", "create gateway")
	}
	if err := gw.Start(ctx); err != nil {
		return errors.Wrap(err, "Host", "Start", "start gateway")
	}
	h.mu.Lock()
	h.gw = gw
	h.mu.Unlock()

	if h.cfg.Metrics.Enabled {
		srv := metric.NewServer(h.cfg.Metrics.Port, h.cfg.Metrics.Path, h.registry, h.cfg.Security)
		go func() {
			if err := srv.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				h.logger.Error("metrics server failed", "error", err)
			}
		}()
		h.mu.Lock()
		h.metricsSrv = srv
		h.mu.Unlock()
		h.logger.Info("metrics server started", "url", srv.Address())
	}

	return nil
}

// connectNATS builds the shared client from the nats section and waits for
// the first connection.
func (h *Host) connectNATS(ctx context.Context) error {
	opts := []natsclient.ClientOption{
		natsclient.WithName("bridgekit-" + h.cfg.GetInstance()),
		natsclient.WithMaxReconnects(h.cfg.NATS.MaxReconnects),
		natsclient.WithMetrics(h.registry),
	}
	if h.cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(h.cfg.NATS.ReconnectWait))
	}
	if h.cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(h.cfg.NATS.Username, h.cfg.NATS.Password))
	}
	if h.cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(h.cfg.NATS.Token))
	}
	if h.cfg.NATS.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(
			h.cfg.NATS.TLS.CertFile, h.cfg.NATS.TLS.KeyFile, h.cfg.NATS.TLS.CAFile))
	}

	client, err := natsclient.NewClient(strings.Join(h.cfg.NATS.URLs, ","), opts...)
	if err != nil {
		return errors.Wrap(err, "Host", "Start", "create nats client")
	}
	if err := client.Connect(ctx); err != nil {
		return errors.WrapTransient(err, "Host", "Start", "connect to nats")
	}

	// Assigned before the readiness wait so rollback closes the client even
	// when the wait times out.
	h.mu.Lock()
	h.natsClient = client
	h.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
	defer cancel()
	if err := client.WaitForConnection(waitCtx); err != nil {
		return errors.WrapTransient(err, "Host", "Start", "wait for nats connection")
	}

	h.logger.Info("nats connected", "url", client.URL())
	return nil
}

func (h *Host) startConfigManager(ctx context.Context) error {
	mgr, err := config.NewConfigManager(h.cfg, h.natsClient, h.baseLogger)
	if err != nil {
		return errors.Wrap(err, "Host", "Start", "create config manager")
	}
	if err := mgr.Start(ctx); err != nil {
		return errors.Wrap(err, "Host", "Start", "start config manager")
	}
	h.mu.Lock()
	h.configMgr = mgr
	h.mu.Unlock()
	return nil
}

// registerModules registers the configured built-ins into every namespace.
// Modules come back initialized; Start happens after the table freezes.
func (h *Host) registerModules() error {
	deps := module.Dependencies{
		NATSClient:      h.natsClient,
		MetricsRegistry: h.registry,
		Logger:          h.baseLogger,
		Host:            h.hostMeta(),
	}
	bounds := moduleregistry.Boundaries{
		Granter:   h.granter,
		Source:    h.source,
		Factories: h.factories,
	}

	for _, ns := range h.cfg.Namespaces {
		mods, err := moduleregistry.RegisterAll(h.table, h.cfg.Modules, deps, bounds,
			h.hub.Emitter, ns)
		if err != nil {
			return errors.WrapFatal(err, "Host", "Start", "register built-ins in "+ns)
		}
		h.adoptModules(ns, mods)
	}
	return nil
}

// adoptModules takes ownership of registered modules: the host starts them
// after the freeze and stops them during teardown.
func (h *Host) adoptModules(namespace string, mods []module.LifecycleModule) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range mods {
		h.modules = append(h.modules, &hostModule{
			namespace: namespace,
			lifecycle: m,
			managed: &module.Managed{
				Module:     m,
				State:      module.StateInitialized,
				StartOrder: len(h.modules),
			},
		})
	}
}

// startModules starts every registered module concurrently. The settings
// module's KV backend does real IO on start, so serial starts would stack
// round trips per namespace.
func (h *Host) startModules(ctx context.Context) error {
	results := make([]error, len(h.modules))

	var g errgroup.Group
	for i, hm := range h.modules {
		modCtx, cancel := context.WithCancel(ctx)
		hm.managed.Context = modCtx
		hm.managed.Cancel = cancel

		g.Go(func() error {
			results[i] = hm.lifecycle.Start(modCtx)
			return results[i]
		})
	}
	startErr := g.Wait()

	h.mu.Lock()
	for i, hm := range h.modules {
		if results[i] != nil {
			hm.managed.State = module.StateFailed
			hm.managed.LastError = results[i]
		} else {
			hm.managed.State = module.StateStarted
		}
	}
	h.mu.Unlock()

	if startErr != nil {
		for i, hm := range h.modules {
			if results[i] != nil {
				return errors.WrapFatal(results[i], "Host", "Start", "start module "+hm.name())
			}
		}
	}

	h.logger.Info("modules started", "count", len(h.modules))
	return nil
}

// Stop tears the host down in reverse order: the gateway detaches callers,
// script contexts close, the dispatcher drains in-flight work, modules stop,
// and finally the inspector, config manager, metrics server, and NATS client
// shut down. The timeout is a shared budget; later steps get whatever the
// earlier ones left. Stop is idempotent.
func (h *Host) Stop(timeout time.Duration) error {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.started = false
	h.mu.Unlock()

	h.logger.Info("stopping host", "timeout", timeout)
	start := time.Now()

	errs := h.teardown(timeout)
	if len(errs) > 0 {
		h.logger.Error("host stopped with errors",
			"errors", len(errs),
			"duration_ms", time.Since(start).Milliseconds())
		return errors.Wrap(stderrors.Join(errs...), "Host", "Stop", "stop components")
	}

	h.logger.Info("host stopped", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// teardown stops whatever subset of components exists, in reverse start
// order, collecting errors instead of stopping at the first one. Both Stop
// and the Start rollback path use it.
func (h *Host) teardown(timeout time.Duration) []error {
	deadline := time.Now().Add(timeout)
	remaining := func() time.Duration {
		if r := time.Until(deadline); r > 0 {
			return r
		}
		return time.Millisecond
	}

	var errs []error

	if h.gw != nil {
		if err := h.gw.Stop(remaining()); err != nil {
			errs = append(errs, errors.Wrap(err, "Host", "Stop", "stop gateway"))
		}
	}
	if h.scripts != nil {
		if err := h.scripts.CloseAll(remaining()); err != nil {
			errs = append(errs, errors.Wrap(err, "Host", "Stop", "close script contexts"))
		}
	}
	if h.dispatcher != nil {
		if err := h.dispatcher.Stop(remaining()); err != nil {
			errs = append(errs, errors.Wrap(err, "Host", "Stop", "drain dispatcher"))
		}
	}

	for i := len(h.modules) - 1; i >= 0; i-- {
		hm := h.modules[i]
		h.mu.Lock()
		started := hm.managed.State == module.StateStarted
		h.mu.Unlock()

		if started {
			err := hm.lifecycle.Stop(remaining())
			h.mu.Lock()
			if err != nil {
				hm.managed.State = module.StateFailed
				hm.managed.LastError = err
			} else {
				hm.managed.State = module.StateStopped
			}
			h.mu.Unlock()
			if err != nil {
				errs = append(errs, errors.Wrap(err, "Host", "Stop", "stop module "+hm.name()))
			}
		}
		if hm.managed.Cancel != nil {
			hm.managed.Cancel()
		}
	}

	if h.inspector != nil {
		if err := h.inspector.Stop(remaining()); err != nil {
			errs = append(errs, errors.Wrap(err, "Host", "Stop", "stop inspector"))
		}
	}
	if h.configMgr != nil {
		if err := h.configMgr.Stop(remaining()); err != nil {
			errs = append(errs, errors.Wrap(err, "Host", "Stop", "stop config manager"))
		}
	}
	if h.metricsSrv != nil {
		if err := h.metricsSrv.Stop(); err != nil {
			errs = append(errs, errors.Wrap(err, "Host", "Stop", "stop metrics server"))
		}
	}
	if h.natsClient != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), remaining())
		if err := h.natsClient.Close(closeCtx); err != nil {
			errs = append(errs, errors.Wrap(err, "Host", "Stop", "close nats client"))
		}
		cancel()
	}

	return errs
}

// Run starts the host and blocks until the context is cancelled or the
// process receives SIGINT or SIGTERM, then stops with the configured
// shutdown budget. The health monitor refreshes on a fixed cadence while
// running.
//
// Start receives ctx rather than the signal context: a signal must reach
// Stop's drain path first, not cancel dispatcher workers mid-handler. A
// second signal during shutdown kills the process through the restored
// default handler.
func (h *Host) Run(ctx context.Context) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := h.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(healthRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-signalCtx.Done():
			stop()
			h.logger.Info("shutdown signal received")
			return h.Stop(h.shutdownTimeout)
		case <-ticker.C:
			h.refreshHealth()
		}
	}
}

// Health refreshes and aggregates component health into one host status.
func (h *Host) Health() health.Status {
	h.refreshHealth()
	return h.monitor.AggregateHealth("host")
}

func (h *Host) refreshHealth() {
	h.mu.Lock()
	nats := h.natsClient
	dispatcher := h.dispatcher
	scripts := h.scripts
	gw := h.gw
	mods := make([]*hostModule, len(h.modules))
	copy(mods, h.modules)
	h.mu.Unlock()

	if nats != nil {
		if nats.IsHealthy() {
			h.monitor.UpdateHealthy("nats", "connected")
		} else {
			h.monitor.UpdateUnhealthy("nats", "connection unhealthy")
		}
	}
	if dispatcher != nil {
		h.monitor.UpdateHealthy("dispatcher",
			fmt.Sprintf("%d in flight, %d queued", dispatcher.InFlight(), dispatcher.Queued()))
	}
	if scripts != nil {
		h.monitor.UpdateHealthy("scripts", fmt.Sprintf("%d contexts", scripts.Count()))
	}
	if gw != nil {
		h.monitor.Update("gateway", health.FromModuleHealth("gateway", gw.Health()))
	}
	for _, hm := range mods {
		h.monitor.Update(hm.name(), health.FromModuleHealth(hm.name(), hm.lifecycle.Health()))
	}
}

func (h *Host) hostMeta() types.HostMeta {
	return types.HostMeta{Org: h.cfg.GetOrg(), Host: h.cfg.GetInstance()}
}
