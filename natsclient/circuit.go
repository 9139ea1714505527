package natsclient

import "time"

// Failures returns the total failure count since the last successful
// operation.
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// Backoff returns the wait before the next circuit test.
func (c *Client) Backoff() time.Duration {
	return c.backoff.Load().(time.Duration)
}

// recordFailure counts a failed operation against the circuit. Once the
// round reaches the threshold the circuit opens, doubles its backoff and
// schedules a test that lets the next attempt through.
func (c *Client) recordFailure() {
	total := c.failures.Add(1)
	c.lastFailure.Store(time.Now())

	round := c.circuitFailures.Add(1)
	c.logger.Debugf("failure %d recorded (%d this round)", total, round)

	if round < c.circuitThreshold {
		return
	}

	status := c.Status()
	if status == StatusCircuitOpen {
		// Failures during an open circuit lengthen the next test window.
		_, next := c.raiseBackoff()
		c.circuitFailures.Store(0)
		c.logger.Printf("circuit still open, backoff now %v", next)
		return
	}

	// Only one goroutine wins the transition to open.
	if !c.status.CompareAndSwap(status, StatusCircuitOpen) {
		return
	}

	wait, _ := c.raiseBackoff()
	c.circuitFailures.Store(0)
	c.logger.Printf("circuit opened after %d failures, testing again in %v", round, wait)
	time.AfterFunc(wait, c.testCircuit)
}

// raiseBackoff doubles the backoff up to the configured maximum. It
// returns the value before and after the raise; the circuit waits out
// the previous value before testing.
func (c *Client) raiseBackoff() (previous, next time.Duration) {
	previous = c.backoff.Load().(time.Duration)
	next = previous * 2
	if next > c.maxBackoff {
		next = c.maxBackoff
	}
	c.backoff.Store(next)
	return previous, next
}

// resetCircuit clears failure state after a successful operation.
func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.circuitFailures.Store(0)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

// testCircuit ends the open period. The status drops back to
// disconnected so the next Connect attempt is allowed through; a
// successful attempt then resets the circuit entirely.
func (c *Client) testCircuit() {
	if c.Status() == StatusCircuitOpen {
		c.logger.Debugf("circuit test window reached, allowing reconnection")
		c.setStatus(StatusDisconnected)
	}
}
