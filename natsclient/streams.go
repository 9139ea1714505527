package natsclient

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/bridgekit/errors"
)

// JetStream returns the JetStream context established by Connect.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("JetStream not initialized"),
			"Client", "JetStream", "get JetStream context")
	}

	return c.js, nil
}

// jetStreamReady runs the guards shared by every JetStream operation:
// an open circuit fails fast, a missing connection fails with
// ErrNotConnected, and an uninitialized JetStream context counts as a
// failure against the circuit.
func (c *Client) jetStreamReady() (jetstream.JetStream, error) {
	if c.Status() == StatusCircuitOpen {
		return nil, ErrCircuitOpen
	}
	if c.Status() != StatusConnected {
		return nil, ErrNotConnected
	}

	js, err := c.JetStream()
	if err != nil {
		c.recordFailure()
		return nil, err
	}
	return js, nil
}

// CreateStream creates a JetStream stream and tracks it for metrics.
func (c *Client) CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	js, err := c.jetStreamReady()
	if err != nil {
		return nil, err
	}

	stream, err := js.CreateStream(ctx, cfg)
	if err != nil {
		c.recordFailure()
		c.jsMetrics.recordError("create_stream")
		return nil, err
	}

	c.resetCircuit()
	c.jsMetrics.trackStream(cfg.Name, stream)
	return stream, nil
}

// GetStream looks up an existing stream by name.
func (c *Client) GetStream(ctx context.Context, name string) (jetstream.Stream, error) {
	js, err := c.jetStreamReady()
	if err != nil {
		return nil, err
	}

	stream, err := js.Stream(ctx, name)
	if err != nil {
		c.recordFailure()
		c.jsMetrics.recordError("get_stream")
		return nil, err
	}

	c.resetCircuit()
	c.jsMetrics.trackStream(name, stream)
	return stream, nil
}

// PublishToStream publishes data to a subject owned by a stream and
// waits for the server acknowledgement.
func (c *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	js, err := c.jetStreamReady()
	if err != nil {
		return err
	}

	if _, err := js.Publish(ctx, subject, data); err != nil {
		c.recordFailure()
		return err
	}

	c.resetCircuit()
	return nil
}

// ConsumeStream attaches a handler to a stream through an ephemeral
// consumer filtered on subject. Messages are acked after the handler
// returns. A second call for the same stream and subject replaces the
// previous consumer.
func (c *Client) ConsumeStream(ctx context.Context, streamName, subject string, handler func([]byte)) error {
	js, err := c.jetStreamReady()
	if err != nil {
		return err
	}

	if c.closed.Load() {
		return errors.WrapInvalid(
			fmt.Errorf("client is closed"),
			"Client", "ConsumeStream", "check client state")
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
	})
	if err != nil {
		c.recordFailure()
		c.jsMetrics.recordError("create_consumer")
		return err
	}

	if info, err := consumer.Info(ctx); err == nil {
		c.jsMetrics.trackConsumer(streamName, info.Name, consumer)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		handler(msg.Data())
		msg.Ack()
	})
	if err != nil {
		c.recordFailure()
		return err
	}

	c.consumersMu.Lock()
	defer c.consumersMu.Unlock()

	// Close may have run between the guard above and taking the lock.
	if c.closed.Load() {
		cc.Stop()
		return errors.WrapInvalid(
			fmt.Errorf("client is closing"),
			"Client", "ConsumeStream", "register consumer")
	}

	if c.consumers == nil {
		c.consumers = make(map[string]jetstream.ConsumeContext)
	}
	key := streamName + ":" + subject
	if previous, ok := c.consumers[key]; ok {
		previous.Stop()
		c.logger.Debugf("replaced consumer for %s", key)
	}
	c.consumers[key] = cc

	c.resetCircuit()
	return nil
}
