package gateway

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/bridge"
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/module"
	"github.com/c360/bridgekit/value"
)

// echoModule is a minimal capability module for gateway tests.
type echoModule struct{}

func (echoModule) Meta() module.Metadata {
	return module.Metadata{Name: "Echo", Type: "system", Description: "gateway test stub", Version: "1.0.0"}
}

func (echoModule) Methods() []module.Method {
	return []module.Method{
		{
			Name:        "echo",
			Description: "Return the argument unchanged",
			Signature: value.Signature{
				Params: []value.Param{value.P("input", value.TypeAny)},
				Result: value.TypeAny,
			},
			Func: func(_ context.Context, args []value.Value) (value.Value, error) {
				return args[0], nil
			},
		},
		{
			Name:        "boom",
			Description: "Always fail",
			Signature:   value.Signature{Result: value.TypeNull},
			Func: func(_ context.Context, _ []value.Value) (value.Value, error) {
				return value.Null(), errors.New(errors.KindNativeFailure, "Echo", "boom",
					"hardware exploded")
			},
		},
	}
}

func (echoModule) Events() []module.EventDef {
	return []module.EventDef{{Name: "ping", Description: "Test ping", Payload: value.TypeMap}}
}

func (echoModule) ConfigSchema() module.ConfigSchema { return module.ConfigSchema{} }

func (echoModule) Health() module.HealthStatus {
	return module.HealthStatus{Healthy: true, LastCheck: time.Now()}
}

type fixture struct {
	table      *module.NamespaceTable
	dispatcher *bridge.Dispatcher
	hub        *bridge.EventHub
	gateway    *Gateway
}

// newFixture starts a gateway on an ephemeral port over v1 and v2 with Echo
// registered in v1.
func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	table, err := module.NewNamespaceTable("v1", "v2")
	require.NoError(t, err)
	desc, err := module.NewDescriptor("v1", echoModule{})
	require.NoError(t, err)
	reg, err := table.NamespaceFor("v1")
	require.NoError(t, err)
	require.NoError(t, reg.Register(desc))
	table.FreezeAll()

	d, err := bridge.NewDispatcher(bridge.DefaultConfig(), bridge.Deps{Table: table})
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(2 * time.Second) })

	hub := bridge.NewEventHub(nil, nil)

	cfg := DefaultConfig()
	cfg.Port = 0
	if mutate != nil {
		mutate(&cfg)
	}

	g, err := New(cfg, Deps{Dispatcher: d, Hub: hub, Table: table})
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { _ = g.Stop(2 * time.Second) })

	return &fixture{table: table, dispatcher: d, hub: hub, gateway: g}
}

func (f *fixture) dial(t *testing.T, namespace string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(f.gateway.Address()+"?namespace="+namespace, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// httpURL rewrites the attach address for plain HTTP requests.
func (f *fixture) httpURL() string {
	return strings.Replace(f.gateway.Address(), "ws://", "http://", 1)
}

func sendFrame(t *testing.T, ws *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(frame))
}

func readFrame(t *testing.T, ws *websocket.Conn) serverFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame serverFrame
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"privileged port", func(c *Config) { c.Port = 80 }},
		{"relative path", func(c *Config) { c.Path = "attach" }},
		{"zero frame size", func(c *Config) { c.MaxFrameBytes = 0 }},
		{"zero frame rate", func(c *Config) { c.FrameRate = 0 }},
		{"zero burst", func(c *Config) { c.FrameBurst = 0 }},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }},
		{"ping slower than pong", func(c *Config) { c.PingInterval = 2 * c.PongTimeout }},
		{"negative queue capacity", func(c *Config) { c.QueueCapacity = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), errors.ErrInvalidConfig)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	table, err := module.NewNamespaceTable("v1")
	require.NoError(t, err)
	d, err := bridge.NewDispatcher(bridge.DefaultConfig(), bridge.Deps{Table: table})
	require.NoError(t, err)
	hub := bridge.NewEventHub(nil, nil)

	_, err = New(DefaultConfig(), Deps{Hub: hub, Table: table})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil dispatcher")

	_, err = New(DefaultConfig(), Deps{Dispatcher: d, Table: table})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil event hub")

	_, err = New(DefaultConfig(), Deps{Dispatcher: d, Hub: hub})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil namespace table")

	bad := DefaultConfig()
	bad.Path = ""
	_, err = New(bad, Deps{Dispatcher: d, Hub: hub, Table: table})
	require.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestGateway_AttachRequiresKnownNamespace(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.httpURL() + "?namespace=v99")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2, err := http.Get(f.httpURL())
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	_, _, err = websocket.DefaultDialer.Dial(f.gateway.Address()+"?namespace=v99", nil)
	require.Error(t, err)
}

func TestGateway_InvokeRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ws := f.dial(t, "v1")

	require.Eventually(t, func() bool { return f.gateway.Connections() == 1 },
		time.Second, 10*time.Millisecond)

	sendFrame(t, ws, map[string]any{
		"op":     "invoke",
		"id":     "call-1",
		"module": "Echo",
		"method": "echo",
		"args":   []any{map[string]any{"msg": "hello"}},
	})

	frame := readFrame(t, ws)
	assert.Equal(t, opResult, frame.Op)
	assert.Equal(t, "call-1", frame.ID)
	result, ok := frame.Result.(map[string]any)
	require.True(t, ok, "result should be a map, got %T", frame.Result)
	assert.Equal(t, "hello", result["msg"])
}

func TestGateway_InvokeErrors(t *testing.T) {
	f := newFixture(t, nil)
	ws := f.dial(t, "v1")

	cases := []struct {
		name     string
		frame    map[string]any
		kind     string
		contains string
	}{
		{
			name:  "unknown module",
			frame: map[string]any{"op": "invoke", "id": "a", "module": "Nope", "method": "echo", "args": []any{1}},
			kind:  "module_not_found",
		},
		{
			name:     "unknown method",
			frame:    map[string]any{"op": "invoke", "id": "b", "module": "Echo", "method": "nope"},
			kind:     "not_found",
			contains: "has no method",
		},
		{
			name:     "arity mismatch",
			frame:    map[string]any{"op": "invoke", "id": "c", "module": "Echo", "method": "echo"},
			kind:     "type_mismatch",
			contains: "",
		},
		{
			name:     "native failure",
			frame:    map[string]any{"op": "invoke", "id": "d", "module": "Echo", "method": "boom"},
			kind:     "native_failure",
			contains: "hardware exploded",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sendFrame(t, ws, tc.frame)
			frame := readFrame(t, ws)
			assert.Equal(t, opError, frame.Op)
			assert.Equal(t, tc.frame["id"], frame.ID)
			require.NotNil(t, frame.Error)
			assert.Equal(t, tc.kind, frame.Error.Kind)
			if tc.contains != "" {
				assert.Contains(t, frame.Error.Message, tc.contains)
			}
		})
	}
}

func TestGateway_MalformedFrames(t *testing.T) {
	f := newFixture(t, nil)
	ws := f.dial(t, "v1")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	frame := readFrame(t, ws)
	assert.Equal(t, opError, frame.Op)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "type_mismatch", frame.Error.Kind)
	assert.Contains(t, frame.Error.Message, "malformed frame")

	sendFrame(t, ws, map[string]any{"op": "invoke", "module": "Echo", "method": "echo"})
	frame = readFrame(t, ws)
	assert.Equal(t, opError, frame.Op)
	assert.Contains(t, frame.Error.Message, "needs an id")

	sendFrame(t, ws, map[string]any{"op": "dance", "id": "1"})
	frame = readFrame(t, ws)
	assert.Equal(t, opError, frame.Op)
	assert.Equal(t, "1", frame.ID)
	assert.Contains(t, frame.Error.Message, "unknown op")
}

func TestGateway_FrameRateLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.FrameRate = 0.01
		c.FrameBurst = 2
	})
	ws := f.dial(t, "v1")

	for i := 0; i < 3; i++ {
		sendFrame(t, ws, map[string]any{
			"op": "invoke", "id": string(rune('a' + i)),
			"module": "Echo", "method": "echo", "args": []any{1},
		})
	}

	var limited, completed int
	for i := 0; i < 3; i++ {
		frame := readFrame(t, ws)
		switch {
		case frame.Op == opError && strings.Contains(frame.Error.Message, "rate limit"):
			limited++
		case frame.Op == opResult:
			completed++
		}
	}
	assert.Equal(t, 1, limited, "third frame should be refused")
	assert.Equal(t, 2, completed)
}

func TestGateway_SubscribePublishUnsubscribe(t *testing.T) {
	f := newFixture(t, nil)
	ws := f.dial(t, "v1")

	sendFrame(t, ws, map[string]any{"op": "subscribe", "id": "s1", "module": "Echo", "event": "ping"})
	ack := readFrame(t, ws)
	require.Equal(t, opResult, ack.Op)
	require.Equal(t, "s1", ack.ID)
	require.NotEmpty(t, ack.Subscription)
	subID := ack.Subscription

	payload := value.NewMap(map[string]value.Value{"n": value.NewNumber(1)})
	require.Equal(t, 1, f.hub.Publish("v1", "Echo", "ping", payload))

	event := readFrame(t, ws)
	assert.Equal(t, opEvent, event.Op)
	assert.Equal(t, subID, event.Subscription)
	assert.Equal(t, "Echo", event.Module)
	assert.Equal(t, "ping", event.Event)
	body, ok := event.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), body["n"])

	sendFrame(t, ws, map[string]any{"op": "unsubscribe", "id": "u1", "subscription": subID})
	done := readFrame(t, ws)
	assert.Equal(t, opResult, done.Op)
	assert.Equal(t, "u1", done.ID)
	assert.Equal(t, true, done.Result)

	assert.Equal(t, 0, f.hub.Publish("v1", "Echo", "ping", payload))
}

func TestGateway_UnsubscribeOnlyOwnSubscriptions(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.dial(t, "v1")
	intruder := f.dial(t, "v1")

	sendFrame(t, owner, map[string]any{"op": "subscribe", "id": "s1", "module": "Echo", "event": "ping"})
	ack := readFrame(t, owner)
	require.NotEmpty(t, ack.Subscription)

	sendFrame(t, intruder, map[string]any{"op": "unsubscribe", "id": "u1", "subscription": ack.Subscription})
	denied := readFrame(t, intruder)
	assert.Equal(t, opResult, denied.Op)
	assert.Equal(t, false, denied.Result)

	// The owner's subscription survives the foreign cancel attempt.
	payload := value.NewMap(map[string]value.Value{"n": value.NewNumber(2)})
	assert.Equal(t, 1, f.hub.Publish("v1", "Echo", "ping", payload))
}

func TestGateway_SubscribeValidation(t *testing.T) {
	f := newFixture(t, nil)
	ws := f.dial(t, "v1")

	sendFrame(t, ws, map[string]any{"op": "subscribe", "id": "s1", "module": "Nope", "event": "ping"})
	frame := readFrame(t, ws)
	assert.Equal(t, opError, frame.Op)
	assert.Equal(t, "module_not_found", frame.Error.Kind)

	sendFrame(t, ws, map[string]any{"op": "subscribe", "id": "s2", "module": "Echo", "event": "nope"})
	frame = readFrame(t, ws)
	assert.Equal(t, opError, frame.Op)
	assert.Equal(t, "not_found", frame.Error.Kind)
	assert.Contains(t, frame.Error.Message, "has no event")

	sendFrame(t, ws, map[string]any{"op": "unsubscribe", "id": "u1"})
	frame = readFrame(t, ws)
	assert.Equal(t, opError, frame.Op)
	assert.Equal(t, "type_mismatch", frame.Error.Kind)
}

func TestGateway_DisconnectCancelsSubscriptions(t *testing.T) {
	f := newFixture(t, nil)
	ws := f.dial(t, "v1")

	sendFrame(t, ws, map[string]any{"op": "subscribe", "id": "s1", "module": "Echo", "event": "ping"})
	readFrame(t, ws)
	require.Equal(t, 1, f.hub.Subscriptions("v1", "Echo"))

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		return f.gateway.Connections() == 0 && f.hub.Subscriptions("v1", "Echo") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_FrameSizeLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxFrameBytes = 64 })
	ws := f.dial(t, "v1")

	require.Eventually(t, func() bool { return f.gateway.Connections() == 1 },
		time.Second, 10*time.Millisecond)

	big := strings.Repeat("x", 512)
	sendFrame(t, ws, map[string]any{"op": "invoke", "id": "1", "module": "Echo", "method": "echo", "args": []any{big}})

	// An oversized frame kills the connection.
	require.Eventually(t, func() bool { return f.gateway.Connections() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestGateway_OriginFiltering(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.AllowedOrigins = []string{"https://app.example.com"}
	})

	url := f.gateway.Address() + "?namespace=v1"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://app.example.com"}})
	require.NoError(t, err)
	_ = ws.Close()

	// Non-browser clients send no Origin header and always pass.
	ws2, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = ws2.Close()
}

func TestGateway_StopDetachesClients(t *testing.T) {
	f := newFixture(t, nil)
	ws := f.dial(t, "v1")

	require.Eventually(t, func() bool { return f.gateway.Connections() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, f.gateway.Stop(2*time.Second))
	assert.Equal(t, 0, f.gateway.Connections())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err, "client read should fail after gateway stop")

	health := f.gateway.Health()
	assert.False(t, health.Healthy)

	// Stop is idempotent.
	require.NoError(t, f.gateway.Stop(time.Second))
}

func TestGateway_Health(t *testing.T) {
	f := newFixture(t, nil)

	health := f.gateway.Health()
	assert.True(t, health.Healthy)
	assert.Equal(t, 0, health.ErrorCount)
	assert.Empty(t, health.LastError)

	assert.True(t, strings.HasPrefix(f.gateway.Address(), "ws://localhost:"))
	assert.True(t, strings.HasSuffix(f.gateway.Address(), DefaultConfig().Path))
}

func TestGateway_StartTwiceFails(t *testing.T) {
	f := newFixture(t, nil)
	err := f.gateway.Start(context.Background())
	require.ErrorIs(t, err, errors.ErrAlreadyStarted)
}
