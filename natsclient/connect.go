package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/bridgekit/errors"
)

// Connect dials the server and initializes JetStream. A failed attempt
// counts against the circuit; once the circuit is open Connect fails
// fast with ErrCircuitOpen until the test window has passed.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		c.logger.Debugf("circuit open, refusing connection attempt")
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Printf("connecting to %s", c.url)

	opts := c.buildConnectionOptions()

	// nats.Connect has its own timeout but no context support, so run
	// it on the side and race it against ctx.
	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			connectDone <- err
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if js, err := jetstream.New(conn); err == nil {
			c.mu.Lock()
			c.js = js
			c.mu.Unlock()
		}

		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			return c.connectFailed(errors.WrapTransient(err, "Client", "Connect", "establish connection"))
		}
	case <-ctx.Done():
		return c.connectFailed(errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled"))
	}

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Printf("connected to %s", c.url)

	if c.healthInterval > 0 {
		c.startHealthMonitoring()
	}
	if c.jsMetrics != nil && c.metricsInterval > 0 {
		c.metricsCancel = c.jsMetrics.startPoller(context.Background(), c.metricsInterval)
	}

	if c.onHealthChange != nil {
		c.onHealthChange(true)
	}

	return nil
}

// connectFailed records the failure and reports ErrCircuitOpen when it
// tipped the circuit over the threshold.
func (c *Client) connectFailed(err error) error {
	c.recordFailure()

	if c.Status() != StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
		return err
	}
	return ErrCircuitOpen
}

// WaitForConnection blocks until the client reports healthy or ctx
// expires. The returned error matches both ErrConnectionTimeout and
// the context's own error.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrConnectionTimeout, ctx.Err())
		case <-ticker.C:
			if c.IsHealthy() {
				return nil
			}
		}
	}
}

// Close drains and closes the connection. It stops consumers and
// subscriptions first, honors the earlier of ctx's deadline and the
// configured drain timeout, and clears credentials. Calling Close again
// is a no-op.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	// The health goroutine takes c.mu, so stop it before locking.
	c.stopHealthMonitoring()

	if c.metricsCancel != nil {
		c.metricsCancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	c.consumersMu.Lock()
	for name, consumer := range c.consumers {
		consumer.Stop()
		c.logger.Debugf("stopped consumer %s", name)
	}
	c.consumers = nil
	c.consumersMu.Unlock()

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
			c.logger.Errorf("unsubscribe failed: %v", err)
		}
	}
	c.subs = nil

	if c.conn != nil {
		if err := c.drainConnection(ctx); err != nil {
			errs = append(errs, err)
		}
		c.conn.Close()
		c.conn = nil
	}

	// Drop credentials from process memory.
	c.username = ""
	c.password = ""
	c.token = ""

	c.setStatus(StatusDisconnected)

	if len(errs) > 0 {
		return errors.Wrap(stderrors.Join(errs...), "Client", "Close", "cleanup")
	}
	return nil
}

// drainConnection flushes pending messages before the connection goes
// away, bounded by the drain timeout or ctx, whichever ends first.
func (c *Client) drainConnection(ctx context.Context) error {
	drainTimeout := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
			drainTimeout = remaining
		}
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- c.conn.Drain()
	}()

	select {
	case err := <-drainDone:
		if err != nil {
			c.logger.Errorf("drain failed: %v", err)
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
		return nil
	case <-time.After(drainTimeout):
		c.logger.Errorf("drain timed out after %v, forcing close", drainTimeout)
		return errors.WrapTransient(
			fmt.Errorf("drain timeout after %v", drainTimeout),
			"Client", "Close", "drain timeout")
	case <-ctx.Done():
		c.logger.Errorf("context ended during drain, forcing close")
		return errors.Wrap(ctx.Err(), "Client", "Close", "context cancelled during drain")
	}
}

// ConnectionOptions exposes the nats.Option set the client dials with.
func (c *Client) ConnectionOptions() []nats.Option {
	return c.buildConnectionOptions()
}

func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	if c.tlsEnabled {
		if c.tlsCertFile != "" && c.tlsKeyFile != "" {
			opts = append(opts, nats.ClientCert(c.tlsCertFile, c.tlsKeyFile))
		}
		if c.tlsCAFile != "" {
			opts = append(opts, nats.RootCAs(c.tlsCAFile))
		}
	}

	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	if c.compression {
		opts = append(opts, nats.Compression(true))
	}

	return opts
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	c.setStatus(StatusReconnecting)

	c.mu.RLock()
	onDisconnect := c.onDisconnect
	onHealthChange := c.onHealthChange
	c.mu.RUnlock()

	if onDisconnect != nil {
		go onDisconnect(err)
	}
	if onHealthChange != nil {
		go onHealthChange(false)
	}
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.resetCircuit()

	c.mu.RLock()
	onReconnect := c.onReconnect
	onHealthChange := c.onHealthChange
	c.mu.RUnlock()

	if onReconnect != nil {
		go onReconnect()
	}
	if onHealthChange != nil {
		go onHealthChange(true)
	}
}

func (c *Client) handleClosed(conn *nats.Conn) {
	c.setStatus(StatusDisconnected)

	c.mu.RLock()
	onHealthChange := c.onHealthChange
	onConnectionLost := c.onConnectionLost
	c.mu.RUnlock()

	if onHealthChange != nil {
		go onHealthChange(false)
	}

	// An unexpected final closure (reconnects exhausted) is a lost
	// connection; a deliberate Close is not.
	if onConnectionLost != nil && !c.closed.Load() {
		go onConnectionLost(conn.LastError())
	}
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	// Subscription-level errors land here too, so this does not count
	// against the circuit.
	c.logger.Errorf("nats error: %v", err)
}

// startHealthMonitoring probes the connection on the configured
// interval, flips the status when the probe disagrees with it, and
// fires the health callback on every change.
func (c *Client) startHealthMonitoring() {
	c.stopHealthMonitoring()

	c.mu.Lock()
	c.healthTicker = time.NewTicker(c.healthInterval)
	c.healthDone = make(chan struct{})
	ticker := c.healthTicker
	done := c.healthDone
	c.mu.Unlock()

	go func() {
		defer ticker.Stop()
		lastHealthy := c.IsHealthy()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.RLock()
				conn := c.conn
				notify := c.onHealthChange
				c.mu.RUnlock()

				if conn == nil {
					continue
				}

				healthy := conn.IsConnected()
				if _, err := conn.RTT(); err != nil {
					healthy = false
				}

				if healthy && c.Status() != StatusConnected {
					c.setStatus(StatusConnected)
				} else if !healthy && c.Status() == StatusConnected {
					c.setStatus(StatusReconnecting)
				}

				if healthy != lastHealthy && notify != nil {
					notify(healthy)
				}
				lastHealthy = healthy
			}
		}
	}()
}

func (c *Client) stopHealthMonitoring() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthTicker != nil {
		c.healthTicker.Stop()
		c.healthTicker = nil
	}
	if c.healthDone != nil {
		close(c.healthDone)
		c.healthDone = nil
	}
}
