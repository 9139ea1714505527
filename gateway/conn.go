package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/c360/bridgekit/bridge"
	"github.com/c360/bridgekit/errors"
)

// conn is one attached caller: a WebSocket, a caller id, a serial event
// queue, and a frame rate limiter.
type conn struct {
	id        string
	namespace string
	ws        *websocket.Conn
	queue     *bridge.CallbackQueue
	limiter   *rate.Limiter
	logger    *slog.Logger

	// gorilla/websocket panics on concurrent writes, so every write goes
	// through writeMu.
	writeMu      sync.Mutex
	writeTimeout time.Duration

	subsMu sync.Mutex
	subs   map[string]struct{}

	closed    atomic.Bool
	closeOnce sync.Once

	connectedAt time.Time
	framesIn    atomic.Uint64
	framesOut   atomic.Uint64
}

// writeFrame marshals and writes one frame under the write lock. Writes
// after detach are dropped.
func (c *conn) writeFrame(frame serverFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return errors.WrapNative(err, "Gateway", "writeFrame", "marshal "+frame.Op+" frame")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return errors.WrapTransient(errors.ErrShuttingDown, "Gateway", "writeFrame",
			"write to "+c.id)
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(err, "Gateway", "writeFrame", "write to "+c.id)
	}
	c.framesOut.Add(1)
	return nil
}

// ping writes one ping control frame.
func (c *conn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return errors.WrapTransient(errors.ErrShuttingDown, "Gateway", "ping",
			"ping "+c.id)
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

func (c *conn) trackSub(id string) {
	c.subsMu.Lock()
	c.subs[id] = struct{}{}
	c.subsMu.Unlock()
}

// ownsSub reports whether the subscription belongs to this connection. A
// caller can only cancel its own subscriptions.
func (c *conn) ownsSub(id string) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	_, ok := c.subs[id]
	return ok
}

func (c *conn) untrackSub(id string) {
	c.subsMu.Lock()
	delete(c.subs, id)
	c.subsMu.Unlock()
}
