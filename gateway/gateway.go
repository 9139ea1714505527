package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/c360/bridgekit/bridge"
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/pkg/security"
	"github.com/c360/bridgekit/pkg/tlsutil"
	"github.com/c360/bridgekit/value"
)

// Deps carries the gateway's collaborators. Dispatcher, Hub, and Table are
// required.
type Deps struct {
	Dispatcher *bridge.Dispatcher
	Hub        *bridge.EventHub
	Table      *module.NamespaceTable
	Logger     *slog.Logger
	Metrics    *metric.Metrics
	Registry   *metric.MetricsRegistry
	Security   security.Config
}

// Gateway is the WebSocket attach server. Each accepted connection becomes
// one bridge caller.
type Gateway struct {
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	metrics *gatewayMetrics

	upgrader   websocket.Upgrader
	server     *http.Server
	listener   net.Listener
	tlsCleanup func()

	connsMu sync.RWMutex
	conns   map[string]*conn

	lifecycleMu sync.Mutex
	mu          sync.RWMutex
	running     bool
	startTime   time.Time
	shutdown    chan struct{}
	wg          *sync.WaitGroup

	errorCount atomic.Int64
	lastError  atomic.Pointer[string]
}

// New builds a gateway. Start opens the listener.
func New(cfg Config, deps Deps) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Dispatcher == nil {
		return nil, errors.New(errors.KindInvalidTarget, "Gateway", "New", "nil dispatcher")
	}
	if deps.Hub == nil {
		return nil, errors.New(errors.KindInvalidTarget, "Gateway", "New", "nil event hub")
	}
	if deps.Table == nil {
		return nil, errors.New(errors.KindInvalidTarget, "Gateway", "New", "nil namespace table")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newGatewayMetrics(deps.Registry)
	if err != nil {
		return nil, errors.WrapFatal(err, "Gateway", "New", "register metrics")
	}

	g := &Gateway{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With("component", "Gateway"),
		metrics: metrics,
		conns:   make(map[string]*conn),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g, nil
}

// checkOrigin enforces AllowedOrigins. An empty list allows everything;
// requests without an Origin header (non-browser clients) always pass.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Start opens the listener and begins accepting attachments.
func (g *Gateway) Start(ctx context.Context) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	g.mu.RLock()
	running := g.running
	g.mu.RUnlock()
	if running {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Gateway", "Start",
			"gateway already running")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Gateway", "Start", "context already done")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(g.cfg.Path, g.handleAttach)
	mux.HandleFunc("/healthz", g.handleHealthz)
	if g.deps.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(
			g.deps.Registry.PrometheusRegistry(),
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		))
	}

	g.server = &http.Server{Handler: mux}
	if g.deps.Security.TLS.Server.Enabled {
		var registerer prometheus.Registerer
		if g.deps.Registry != nil {
			registerer = g.deps.Registry.PrometheusRegistry()
		}
		tlsConfig, tlsCleanup, err := tlsutil.LoadServerTLSConfigWithACME(ctx,
			g.deps.Security.TLS.Server, g.logger, registerer)
		if err != nil {
			return errors.WrapFatal(err, "Gateway", "Start", "load TLS config")
		}
		g.server.TLSConfig = tlsConfig
		g.tlsCleanup = tlsCleanup
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", g.cfg.Port))
	if err != nil {
		return errors.WrapFatal(err, "Gateway", "Start",
			fmt.Sprintf("listen on port %d", g.cfg.Port))
	}
	g.listener = ln

	shutdown := make(chan struct{})
	g.mu.Lock()
	g.running = true
	g.startTime = time.Now()
	g.shutdown = shutdown
	g.wg = &sync.WaitGroup{}
	g.mu.Unlock()

	g.wg.Add(2)
	go g.runServer()
	go g.maintainConnections(shutdown)

	g.logger.Info("gateway listening",
		"addr", ln.Addr().String(),
		"path", g.cfg.Path,
		"tls", g.deps.Security.TLS.Server.Enabled)
	return nil
}

func (g *Gateway) runServer() {
	defer g.wg.Done()

	var err error
	if g.deps.Security.TLS.Server.Enabled {
		err = g.server.ServeTLS(g.listener, "", "")
	} else {
		err = g.server.Serve(g.listener)
	}
	if err != nil && err != http.ErrServerClosed {
		g.recordError(errors.WrapFatal(err, "Gateway", "runServer", "serve"))
		g.logger.Error("gateway server failed", "error", err)
	}
}

// Address returns the attach URL, usable once Start has returned.
func (g *Gateway) Address() string {
	g.mu.RLock()
	ln := g.listener
	g.mu.RUnlock()
	if ln == nil {
		return ""
	}
	scheme := "ws"
	if g.deps.Security.TLS.Server.Enabled {
		scheme = "wss"
	}
	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s://localhost:%s%s", scheme, port, g.cfg.Path)
}

// Connections returns the number of attached callers.
func (g *Gateway) Connections() int {
	g.connsMu.RLock()
	defer g.connsMu.RUnlock()
	return len(g.conns)
}

// Health reports the gateway's health in the module health shape so the
// host aggregates it alongside module healths.
func (g *Gateway) Health() module.HealthStatus {
	g.mu.RLock()
	running := g.running
	start := g.startTime
	g.mu.RUnlock()

	var lastErr string
	if p := g.lastError.Load(); p != nil {
		lastErr = *p
	}
	var uptime time.Duration
	if running {
		uptime = time.Since(start)
	}
	return module.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(g.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     uptime,
	}
}

// Stop refuses new attachments, detaches every caller, and waits for the
// pumps to drain.
func (g *Gateway) Stop(timeout time.Duration) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	shutdown := g.shutdown
	wg := g.wg
	g.mu.Unlock()

	close(shutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.server.Shutdown(shutdownCtx); err != nil {
		g.logger.Warn("server shutdown incomplete", "error", err)
	}

	if g.tlsCleanup != nil {
		g.tlsCleanup()
		g.tlsCleanup = nil
	}

	// Shutdown does not touch hijacked connections; detach them explicitly.
	for _, c := range g.snapshotConns() {
		g.detach(c, "shutdown")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		g.logger.Warn("gateway pumps did not exit before deadline")
		return errors.WrapTransient(errors.ErrTimeout, "Gateway", "Stop", "drain connections")
	}

	g.logger.Info("gateway stopped")
	return nil
}

// handleAttach upgrades one HTTP request into an attached caller.
func (g *Gateway) handleAttach(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("namespace")
	if tag == "" {
		writeHTTPError(w, http.StatusBadRequest, "missing namespace query parameter")
		return
	}
	if _, err := g.deps.Table.NamespaceFor(tag); err != nil {
		writeHTTPError(w, http.StatusNotFound,
			fmt.Sprintf("no bundled implementation set for version %q", tag))
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		g.recordError(errors.WrapTransient(err, "Gateway", "handleAttach", "upgrade"))
		return
	}

	c := &conn{
		id:           "ws-" + uuid.NewString(),
		namespace:    tag,
		ws:           ws,
		limiter:      rate.NewLimiter(rate.Limit(g.cfg.FrameRate), g.cfg.FrameBurst),
		writeTimeout: g.cfg.WriteTimeout,
		subs:         make(map[string]struct{}),
		connectedAt:  time.Now(),
	}
	c.logger = g.logger.With("caller", c.id, "namespace", tag)
	c.queue = bridge.NewCallbackQueue(c.id, g.cfg.QueueCapacity, c.logger, g.deps.Metrics)
	c.queue.Start()

	// Refuse the attachment if Stop won the race; holding mu across the
	// wg.Add keeps the pump visible to Stop's Wait.
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		_ = c.queue.Stop(0)
		_ = ws.Close()
		return
	}
	shutdown := g.shutdown
	g.wg.Add(1)
	g.mu.Unlock()

	g.connsMu.Lock()
	g.conns[c.id] = c
	count := len(g.conns)
	g.connsMu.Unlock()

	g.metrics.recordAttach(tag, count)
	c.logger.Info("caller attached", "remote", ws.RemoteAddr().String())

	go g.readPump(c, shutdown)
}

// readPump reads client frames until the connection dies or the gateway
// stops.
func (g *Gateway) readPump(c *conn, shutdown <-chan struct{}) {
	defer g.wg.Done()
	reason := "connection_closed"
	defer func() { g.detach(c, reason) }()

	c.ws.SetReadLimit(g.cfg.MaxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	})

	for {
		select {
		case <-shutdown:
			reason = "shutdown"
			return
		default:
		}

		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("connection read failed", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
		c.framesIn.Add(1)
		g.handleFrame(c, data)
	}
}

// detach removes one caller: cancels its subscriptions, drains its event
// queue, and closes the socket. Idempotent.
func (g *Gateway) detach(c *conn, reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		g.connsMu.Lock()
		delete(g.conns, c.id)
		count := len(g.conns)
		g.connsMu.Unlock()

		cancelled := g.deps.Hub.CancelAllForCaller(c.id)
		_ = c.queue.Stop(g.cfg.WriteTimeout)
		_ = c.ws.Close()

		g.metrics.recordDetach(reason, count)
		c.logger.Info("caller detached",
			"reason", reason,
			"cancelled_subscriptions", cancelled,
			"frames_in", c.framesIn.Load(),
			"frames_out", c.framesOut.Load(),
			"connected", time.Since(c.connectedAt).Round(time.Millisecond))
	})
}

// handleFrame parses and routes one client frame.
func (g *Gateway) handleFrame(c *conn, data []byte) {
	if !c.limiter.Allow() {
		g.metrics.recordFrameError("rate_limited")
		g.send(c, errorFrame("", errors.New(errors.KindNativeFailure, "Gateway", "handleFrame",
			"frame rate limit exceeded")))
		return
	}

	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.metrics.recordFrameError("malformed")
		g.send(c, errorFrame("", errors.New(errors.KindTypeMismatch, "Gateway", "handleFrame",
			"malformed frame")))
		return
	}
	g.metrics.recordReceived(frame.Op)

	if frame.ID == "" {
		g.metrics.recordFrameError("missing_id")
		g.send(c, errorFrame("", errors.Newf(errors.KindTypeMismatch, "Gateway", "handleFrame",
			"%s frame needs an id", frame.Op)))
		return
	}

	switch frame.Op {
	case opInvoke:
		g.handleInvoke(c, frame)
	case opSubscribe:
		g.handleSubscribe(c, frame)
	case opUnsubscribe:
		g.handleUnsubscribe(c, frame)
	default:
		g.metrics.recordFrameError("unknown_op")
		g.send(c, errorFrame(frame.ID, errors.Newf(errors.KindTypeMismatch, "Gateway", "handleFrame",
			"unknown op %q", frame.Op)))
	}
}

// handleInvoke dispatches one invocation under the connection's caller id.
// Issuance order follows frame order because the read pump is serial, so
// per-module ordering holds per connection.
func (g *Gateway) handleInvoke(c *conn, frame clientFrame) {
	args := make([]value.Value, len(frame.Args))
	for i, raw := range frame.Args {
		var goVal any
		if err := json.Unmarshal(raw, &goVal); err != nil {
			g.metrics.recordFrameError("bad_argument")
			g.send(c, errorFrame(frame.ID, errors.Newf(errors.KindTypeMismatch, "Gateway", "handleInvoke",
				"argument %d is not valid JSON", i)))
			return
		}
		v, err := value.FromGo(goVal)
		if err != nil {
			g.metrics.recordFrameError("bad_argument")
			g.send(c, errorFrame(frame.ID, err))
			return
		}
		args[i] = v
	}

	p, err := g.deps.Dispatcher.Invoke(bridge.Invocation{
		RequestID: c.id + "/" + frame.ID,
		CallerID:  c.id,
		Namespace: c.namespace,
		Module:    frame.Module,
		Method:    frame.Method,
		Args:      args,
		Timeout:   time.Duration(frame.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		g.send(c, errorFrame(frame.ID, err))
		return
	}

	// The dispatcher completes every pending request, so the waiter always
	// exits; writes after detach are dropped by the conn's closed check.
	go func() {
		completion := <-p.Done()
		if completion.IsError() {
			g.send(c, serverFrame{Op: opError, ID: frame.ID, Error: completion.Err})
			return
		}
		g.send(c, resultFrame(frame.ID, completion.Result.Export()))
	}()
}

// handleSubscribe attaches a handler for one declared module event. The
// handler runs on the connection's queue goroutine, which is what keeps
// event frames for one caller in order.
func (g *Gateway) handleSubscribe(c *conn, frame clientFrame) {
	desc, err := g.deps.Table.Resolve(c.namespace, frame.Module)
	if err != nil {
		g.send(c, errorFrame(frame.ID, err))
		return
	}
	if _, ok := desc.Event(frame.Event); !ok {
		g.send(c, errorFrame(frame.ID, errors.Newf(errors.KindNotFound, "Gateway", "handleSubscribe",
			"module %q has no event %q", frame.Module, frame.Event)))
		return
	}

	// The handler can fire before Subscribe returns the id; it parks on
	// ready until the id is known.
	ready := make(chan struct{})
	var subID string
	handler := func(payload value.Value) {
		<-ready
		g.send(c, eventFrame(subID, frame.Module, frame.Event, payload.Export()))
	}

	sub, err := g.deps.Hub.Subscribe(c.id, c.namespace, frame.Module, frame.Event, c.queue, handler)
	if err != nil {
		g.send(c, errorFrame(frame.ID, err))
		return
	}
	subID = sub.ID()
	close(ready)

	c.trackSub(subID)
	g.send(c, subscribedFrame(frame.ID, subID))
}

// handleUnsubscribe cancels one of the connection's own subscriptions.
// Foreign or unknown ids report false and cancel nothing.
func (g *Gateway) handleUnsubscribe(c *conn, frame clientFrame) {
	if frame.Subscription == "" {
		g.metrics.recordFrameError("missing_subscription")
		g.send(c, errorFrame(frame.ID, errors.New(errors.KindTypeMismatch, "Gateway", "handleUnsubscribe",
			"unsubscribe frame needs a subscription id")))
		return
	}
	if !c.ownsSub(frame.Subscription) {
		g.send(c, resultFrame(frame.ID, false))
		return
	}
	removed := g.deps.Hub.Unsubscribe(frame.Subscription)
	c.untrackSub(frame.Subscription)
	g.send(c, resultFrame(frame.ID, removed))
}

// send writes one frame and records the outcome.
func (g *Gateway) send(c *conn, frame serverFrame) {
	if err := c.writeFrame(frame); err != nil {
		g.recordError(err)
		c.logger.Warn("frame write failed", "op", frame.Op, "error", err)
		return
	}
	g.metrics.recordSent(frame.Op)
}

// maintainConnections pings attached callers and detaches the dead ones.
func (g *Gateway) maintainConnections(shutdown <-chan struct{}) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			for _, c := range g.snapshotConns() {
				if err := c.ping(); err != nil {
					g.detach(c, "ping_failed")
				}
			}
		}
	}
}

func (g *Gateway) snapshotConns() []*conn {
	g.connsMu.RLock()
	defer g.connsMu.RUnlock()
	out := make([]*conn, 0, len(g.conns))
	for _, c := range g.conns {
		out = append(out, c)
	}
	return out
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h := g.Health()
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"healthy":        h.Healthy,
		"connections":    g.Connections(),
		"uptime_seconds": int64(h.Uptime.Seconds()),
	})
}

func (g *Gateway) recordError(err error) {
	g.errorCount.Add(1)
	msg := err.Error()
	g.lastError.Store(&msg)
	if g.deps.Metrics != nil {
		g.deps.Metrics.RecordError("Gateway", errors.KindOf(err).String())
	}
}

func writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message, "status": statusCode})
}
