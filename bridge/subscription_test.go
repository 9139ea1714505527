package bridge

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/value"
)

func startedQueue(t *testing.T, caller string) *CallbackQueue {
	t.Helper()
	q := NewCallbackQueue(caller, 64, nil, nil)
	q.Start()
	t.Cleanup(func() { _ = q.Stop(time.Second) })
	return q
}

func TestEventHub_SubscribePublishDeliver(t *testing.T) {
	hub := NewEventHub(nil, nil)
	q := startedQueue(t, "runtime-1")

	got := make(chan value.Value, 1)
	sub, err := hub.Subscribe("runtime-1", "v1", "Settings", "settingsChanged", q, func(payload value.Value) {
		got <- payload
	})
	require.NoError(t, err)
	require.NotEmpty(t, sub.ID())
	assert.Equal(t, 1, hub.Subscriptions("v1", "Settings"))

	payload := value.NewMap(map[string]value.Value{
		"key":   value.NewString("theme"),
		"value": value.NewString("dark"),
	})
	delivered := hub.Publish("v1", "Settings", "settingsChanged", payload)
	assert.Equal(t, 1, delivered)

	select {
	case v := <-got:
		assert.True(t, payload.Equal(v))
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestEventHub_SubscribeValidation(t *testing.T) {
	hub := NewEventHub(nil, nil)
	q := startedQueue(t, "runtime-1")
	handler := func(value.Value) {}

	tests := []struct {
		name    string
		caller  string
		ns      string
		mod     string
		event   string
		queue   *CallbackQueue
		handler func(value.Value)
	}{
		{name: "empty caller", ns: "v1", mod: "Settings", event: "changed", queue: q, handler: handler},
		{name: "empty namespace", caller: "c", mod: "Settings", event: "changed", queue: q, handler: handler},
		{name: "empty module", caller: "c", ns: "v1", event: "changed", queue: q, handler: handler},
		{name: "empty event", caller: "c", ns: "v1", mod: "Settings", queue: q, handler: handler},
		{name: "nil queue", caller: "c", ns: "v1", mod: "Settings", event: "changed", handler: handler},
		{name: "nil handler", caller: "c", ns: "v1", mod: "Settings", event: "changed", queue: q},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hub.Subscribe(tt.caller, tt.ns, tt.mod, tt.event, tt.queue, tt.handler)
			require.Error(t, err)
			assert.True(t, errors.HasKind(err, errors.KindInvalidTarget))
		})
	}
}

// TestEventHub_CancelBeforeDispatchNeverDelivered pins the teardown
// guarantee: a callback already sitting in the queue when Cancel returns is
// never delivered afterward.
func TestEventHub_CancelBeforeDispatchNeverDelivered(t *testing.T) {
	hub := NewEventHub(nil, nil)
	q := startedQueue(t, "runtime-1")

	var deliveredToHandler atomic.Bool
	sub, err := hub.Subscribe("runtime-1", "v1", "Orientation", "orientationChanged", q,
		func(value.Value) { deliveredToHandler.Store(true) })
	require.NoError(t, err)

	// Jam the delivery goroutine so the event callback stays queued.
	gate := make(chan struct{})
	blocking := make(chan struct{})
	require.NoError(t, q.Enqueue(nil, func() {
		close(blocking)
		<-gate
	}))
	<-blocking

	accepted := hub.Publish("v1", "Orientation", "orientationChanged", value.NewString("landscape"))
	require.Equal(t, 1, accepted, "event must be queued before the cancel")

	sub.Cancel()
	close(gate)

	require.NoError(t, q.Stop(time.Second))
	assert.False(t, deliveredToHandler.Load(),
		"callback queued before Cancel must not run after Cancel returned")
	assert.Equal(t, 0, hub.Subscriptions("v1", "Orientation"))
}

// TestSubscription_CancelWaitsForInflightDelivery checks linearization the
// other way around: a Cancel racing a handler that is already running does
// not return until that handler finishes.
func TestSubscription_CancelWaitsForInflightDelivery(t *testing.T) {
	hub := NewEventHub(nil, nil)
	q := startedQueue(t, "runtime-1")

	handlerRunning := make(chan struct{})
	gate := make(chan struct{})
	sub, err := hub.Subscribe("runtime-1", "v1", "Geolocation", "positionChanged", q,
		func(value.Value) {
			close(handlerRunning)
			<-gate
		})
	require.NoError(t, err)

	hub.Publish("v1", "Geolocation", "positionChanged", value.NewNumber(47.6))
	<-handlerRunning

	cancelReturned := make(chan struct{})
	go func() {
		sub.Cancel()
		close(cancelReturned)
	}()

	select {
	case <-cancelReturned:
		t.Fatal("Cancel returned while the handler was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(gate)

	select {
	case <-cancelReturned:
	case <-time.After(time.Second):
		t.Fatal("Cancel did not return after the handler finished")
	}

	// A later emission finds no live subscription.
	assert.Equal(t, 0, hub.Publish("v1", "Geolocation", "positionChanged", value.NewNumber(48.0)))
}

// TestSubscription_CancelFromCallback covers a handler removing itself,
// which must neither deadlock nor allow a second delivery.
func TestSubscription_CancelFromCallback(t *testing.T) {
	hub := NewEventHub(nil, nil)
	q := startedQueue(t, "runtime-1")

	var subRef atomic.Pointer[Subscription]
	var runs atomic.Int32
	ranOnce := make(chan struct{})

	sub, err := hub.Subscribe("runtime-1", "v1", "Orientation", "orientationChanged", q,
		func(value.Value) {
			runs.Add(1)
			if s := subRef.Load(); s != nil {
				s.CancelFromCallback()
			}
			close(ranOnce)
		})
	require.NoError(t, err)
	subRef.Store(sub)

	hub.Publish("v1", "Orientation", "orientationChanged", value.NewString("portrait"))

	select {
	case <-ranOnce:
	case <-time.After(time.Second):
		t.Fatal("handler never ran; self-cancel deadlocked the queue")
	}

	assert.Equal(t, 0, hub.Subscriptions("v1", "Orientation"))
	assert.Equal(t, 0, hub.Publish("v1", "Orientation", "orientationChanged", value.NewString("landscape")))

	require.NoError(t, q.Stop(time.Second))
	assert.Equal(t, int32(1), runs.Load())
}

func TestEventHub_UnsubscribeByID(t *testing.T) {
	hub := NewEventHub(nil, nil)
	q := startedQueue(t, "runtime-1")

	sub, err := hub.Subscribe("runtime-1", "v1", "Settings", "settingsChanged", q, func(value.Value) {})
	require.NoError(t, err)

	assert.False(t, hub.Unsubscribe("no-such-id"))
	assert.True(t, hub.Unsubscribe(sub.ID()))
	// Already removed; teardown is idempotent.
	assert.False(t, hub.Unsubscribe(sub.ID()))
	assert.Equal(t, 0, hub.Subscriptions("v1", "Settings"))
}

func TestEventHub_NamespaceIsolation(t *testing.T) {
	hub := NewEventHub(nil, nil)
	q := startedQueue(t, "runtime-1")

	v1Got := make(chan value.Value, 1)
	v2Got := make(chan value.Value, 1)

	_, err := hub.Subscribe("runtime-1", "v1", "Settings", "settingsChanged", q,
		func(v value.Value) { v1Got <- v })
	require.NoError(t, err)
	_, err = hub.Subscribe("runtime-1", "v2", "Settings", "settingsChanged", q,
		func(v value.Value) { v2Got <- v })
	require.NoError(t, err)

	delivered := hub.Publish("v1", "Settings", "settingsChanged", value.NewString("v1-only"))
	assert.Equal(t, 1, delivered)

	select {
	case v := <-v1Got:
		got, err := v.StringVal()
		require.NoError(t, err)
		assert.Equal(t, "v1-only", got)
	case <-time.After(time.Second):
		t.Fatal("v1 subscriber did not receive the event")
	}

	select {
	case v := <-v2Got:
		t.Fatalf("v2 subscriber received a v1 event: %s", v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventHub_CancelAllForCaller(t *testing.T) {
	hub := NewEventHub(nil, nil)
	qA := startedQueue(t, "conn-a")
	qB := startedQueue(t, "conn-b")

	var aRuns, bRuns atomic.Int32
	_, err := hub.Subscribe("conn-a", "v1", "Settings", "settingsChanged", qA,
		func(value.Value) { aRuns.Add(1) })
	require.NoError(t, err)
	_, err = hub.Subscribe("conn-a", "v1", "Orientation", "orientationChanged", qA,
		func(value.Value) { aRuns.Add(1) })
	require.NoError(t, err)

	bGot := make(chan struct{}, 1)
	_, err = hub.Subscribe("conn-b", "v1", "Settings", "settingsChanged", qB,
		func(value.Value) { bRuns.Add(1); bGot <- struct{}{} })
	require.NoError(t, err)

	assert.Equal(t, 2, hub.CancelAllForCaller("conn-a"))
	assert.Equal(t, 0, hub.CancelAllForCaller("conn-a"))

	delivered := hub.Publish("v1", "Settings", "settingsChanged", value.Null())
	assert.Equal(t, 1, delivered)

	select {
	case <-bGot:
	case <-time.After(time.Second):
		t.Fatal("surviving caller did not receive the event")
	}
	assert.Equal(t, int32(0), aRuns.Load())
	assert.Equal(t, int32(1), bRuns.Load())
}

func TestEventHub_EmitterRoutesToSubscribers(t *testing.T) {
	hub := NewEventHub(nil, nil)
	q := startedQueue(t, "runtime-1")

	got := make(chan value.Value, 1)
	_, err := hub.Subscribe("runtime-1", "v1", "Settings", "settingsChanged", q,
		func(v value.Value) { got <- v })
	require.NoError(t, err)

	em := hub.Emitter("v1", "Settings")
	payload := value.NewMap(map[string]value.Value{"key": value.NewString("fontScale")})
	em.Emit("settingsChanged", payload)

	select {
	case v := <-got:
		assert.True(t, payload.Equal(v))
	case <-time.After(time.Second):
		t.Fatal("emitted event was not delivered")
	}
}

func TestEventHub_StoppedQueueDropsOnlyThatSubscriber(t *testing.T) {
	hub := NewEventHub(nil, nil)
	qLive := startedQueue(t, "conn-live")

	qDead := NewCallbackQueue("conn-dead", 4, nil, nil)
	qDead.Start()
	require.NoError(t, qDead.Stop(time.Second))

	liveGot := make(chan struct{}, 1)
	_, err := hub.Subscribe("conn-live", "v1", "Settings", "settingsChanged", qLive,
		func(value.Value) { liveGot <- struct{}{} })
	require.NoError(t, err)
	_, err = hub.Subscribe("conn-dead", "v1", "Settings", "settingsChanged", qDead,
		func(value.Value) { t.Error("handler on a stopped queue must never run") })
	require.NoError(t, err)

	delivered := hub.Publish("v1", "Settings", "settingsChanged", value.Null())
	assert.Equal(t, 1, delivered)

	select {
	case <-liveGot:
	case <-time.After(time.Second):
		t.Fatal("live subscriber did not receive the event")
	}
}
