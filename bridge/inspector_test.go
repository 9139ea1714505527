package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/types"
	"github.com/c360/bridgekit/value"
)

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Settings", "Settings"},
		{"v1", "v1"},
		{"", "unknown"},
		{"edge.host.local", "edge_host_local"},
		{"my host", "my_host"},
		{"a*b>c", "a_b_c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, subjectToken(tt.in), "subjectToken(%q)", tt.in)
	}
}

func TestInspector_SubjectShape(t *testing.T) {
	client, err := natsclient.NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)

	insp, err := NewInspector(client, types.HostMeta{Org: "acme", Host: "edge.host"},
		InspectorConfig{}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "bridgekit.acme.edge_host.bridge.traffic.v1.Settings",
		insp.subject("v1", "Settings"))
	assert.Equal(t, "bridgekit.acme.edge_host.bridge.traffic.unknown.unknown",
		insp.subject("", ""))
}

func TestNewInspector_Validation(t *testing.T) {
	t.Run("nil client", func(t *testing.T) {
		_, err := NewInspector(nil, types.HostMeta{}, DefaultInspectorConfig(), nil, nil)
		require.Error(t, err)
		assert.True(t, errors.HasKind(err, errors.KindInvalidTarget))
	})

	t.Run("zero config takes defaults", func(t *testing.T) {
		client, err := natsclient.NewClient("nats://127.0.0.1:4222")
		require.NoError(t, err)
		insp, err := NewInspector(client, types.HostMeta{}, InspectorConfig{}, nil, nil)
		require.NoError(t, err)
		want := DefaultInspectorConfig()
		assert.Equal(t, want.BufferSize, insp.cfg.BufferSize)
		assert.Equal(t, want.BatchSize, insp.cfg.BatchSize)
		assert.Equal(t, want.FlushInterval, insp.cfg.FlushInterval)
	})
}

func TestTrafficRecordBuilders(t *testing.T) {
	inv := Invocation{
		RequestID: "req-7",
		CallerID:  "runtime-1",
		Namespace: "v2",
		Module:    "Settings",
		Method:    "set",
		Args:      []value.Value{value.NewString("theme"), value.NewString("dark")},
	}

	rec := invokeRecord(inv)
	assert.Equal(t, DirectionInvoke, rec.Direction)
	assert.Equal(t, "req-7", rec.RequestID)
	assert.Equal(t, "runtime-1", rec.CallerID)
	assert.Equal(t, "v2", rec.Namespace)
	assert.Equal(t, "Settings", rec.Module)
	assert.Equal(t, "set", rec.Method)
	assert.Len(t, rec.Args, 2)
	assert.Positive(t, rec.Timestamp)

	p := newPendingRequest(inv)
	failed := errors.New(errors.KindTimeout, "Dispatcher", "dispatch", "deadline passed")
	require.True(t, p.Fail(failed))
	c := <-p.Done()

	done := completionRecord(p, c)
	assert.Equal(t, DirectionComplete, done.Direction)
	assert.Equal(t, "req-7", done.RequestID)
	assert.Equal(t, "v2", done.Namespace)
	assert.Equal(t, "error", done.Status)
	require.NotNil(t, done.Error)
	assert.Equal(t, "timeout", done.Error.Kind)
	assert.GreaterOrEqual(t, done.ElapsedMs, int64(0))
	assert.Empty(t, done.Args, "completions never echo arguments back")
}

func TestInspector_RecordNeverBlocks(t *testing.T) {
	client, err := natsclient.NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)

	insp, err := NewInspector(client, types.HostMeta{Org: "acme", Host: "h"},
		InspectorConfig{BufferSize: 8, BatchSize: 4, FlushInterval: time.Hour}, nil, nil)
	require.NoError(t, err)
	// Not started: nothing drains the buffer, so overflow must drop oldest.

	for i := 0; i < 100; i++ {
		insp.Record(TrafficRecord{Direction: DirectionInvoke, RequestID: fmt.Sprintf("r-%d", i)})
	}
	assert.Equal(t, 8, insp.Buffered())
}

// TestInspector_PublishFailureIsolated pins the isolation contract: a client
// with no live connection must cost records, never errors.
func TestInspector_PublishFailureIsolated(t *testing.T) {
	client, err := natsclient.NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)

	insp, err := NewInspector(client, types.HostMeta{Org: "acme", Host: "h"},
		InspectorConfig{BufferSize: 16, BatchSize: 4, FlushInterval: 10 * time.Millisecond}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, insp.Start())

	for i := 0; i < 10; i++ {
		insp.Record(invokeRecord(Invocation{RequestID: fmt.Sprintf("r-%d", i), CallerID: "c", Namespace: "v1", Module: "M", Method: "m"}))
	}

	assert.Eventually(t, func() bool { return insp.Buffered() == 0 }, time.Second, 5*time.Millisecond,
		"records are drained even when every publish fails")
	assert.NoError(t, insp.Stop(time.Second))
	assert.Error(t, insp.Start(), "a stopped inspector does not restart")
}

func TestInspector_StopIdempotent(t *testing.T) {
	client, err := natsclient.NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)

	insp, err := NewInspector(client, types.HostMeta{}, DefaultInspectorConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, insp.Start())

	assert.NoError(t, insp.Stop(time.Second))
	assert.NoError(t, insp.Stop(time.Second))

	// Records after stop are silently discarded.
	insp.Record(TrafficRecord{RequestID: "late"})
	assert.Equal(t, 0, insp.Buffered())
}

func TestInspector_PublishesToNATS(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	natsContainer, natsURL := startBridgeTestNATS(ctx, t)
	defer natsContainer.Terminate(ctx)

	client, err := natsclient.NewClient(natsURL, natsclient.WithMaxReconnects(0))
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	received := make(chan TrafficRecord, 16)
	subject := "bridgekit.acme.edge-1.bridge.traffic.v1.Settings"
	err = client.Subscribe(ctx, subject, func(_ context.Context, data []byte) {
		var rec TrafficRecord
		if json.Unmarshal(data, &rec) == nil {
			received <- rec
		}
	})
	require.NoError(t, err)

	insp, err := NewInspector(client, types.HostMeta{Org: "acme", Host: "edge-1"},
		InspectorConfig{BufferSize: 64, BatchSize: 8, FlushInterval: 20 * time.Millisecond}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, insp.Start())
	defer insp.Stop(2 * time.Second)

	inv := Invocation{
		RequestID: "itest-1",
		CallerID:  "runtime-1",
		Namespace: "v1",
		Module:    "Settings",
		Method:    "get",
		Args:      []value.Value{value.NewString("theme")},
	}
	insp.Record(invokeRecord(inv))

	p := newPendingRequest(inv)
	require.True(t, p.Complete(value.NewString("dark")))
	insp.Record(completionRecord(p, <-p.Done()))

	got := make([]TrafficRecord, 0, 2)
	for len(got) < 2 {
		select {
		case rec := <-received:
			got = append(got, rec)
		case <-time.After(5 * time.Second):
			t.Fatalf("expected 2 traffic records, got %d", len(got))
		}
	}

	assert.Equal(t, DirectionInvoke, got[0].Direction)
	assert.Equal(t, "itest-1", got[0].RequestID)
	assert.Len(t, got[0].Args, 1)
	assert.Equal(t, DirectionComplete, got[1].Direction)
	assert.Equal(t, "ok", got[1].Status)
}

func startBridgeTestNATS(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "nats:2.11.7-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
	}

	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := natsContainer.Host(ctx)
	require.NoError(t, err)

	port, err := natsContainer.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return natsContainer, fmt.Sprintf("nats://%s:%s", host, port.Port())
}
