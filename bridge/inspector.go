package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/pkg/buffer"
	"github.com/c360/bridgekit/pkg/timestamp"
	"github.com/c360/bridgekit/types"
	"github.com/c360/bridgekit/value"
)

// Traffic record directions.
const (
	DirectionInvoke   = "invoke"
	DirectionComplete = "complete"
)

// TrafficRecord is one observed bridge crossing, serialized as JSON for
// debugging tooling subscribed to the traffic subjects.
type TrafficRecord struct {
	Timestamp int64             `json:"timestamp"`
	Direction string            `json:"direction"`
	RequestID string            `json:"request_id"`
	CallerID  string            `json:"caller_id"`
	Namespace string            `json:"namespace"`
	Module    string            `json:"module"`
	Method    string            `json:"method"`
	Args      []value.Value     `json:"args,omitempty"`
	Status    string            `json:"status,omitempty"`
	Error     *errors.WireError `json:"error,omitempty"`
	ElapsedMs int64             `json:"elapsed_ms,omitempty"`
}

func invokeRecord(inv Invocation) TrafficRecord {
	return TrafficRecord{
		Timestamp: timestamp.Now(),
		Direction: DirectionInvoke,
		RequestID: inv.RequestID,
		CallerID:  inv.CallerID,
		Namespace: inv.Namespace,
		Module:    inv.Module,
		Method:    inv.Method,
		Args:      inv.Args,
	}
}

func completionRecord(p *PendingRequest, c Completion) TrafficRecord {
	return TrafficRecord{
		Timestamp: timestamp.Now(),
		Direction: DirectionComplete,
		RequestID: p.ID(),
		CallerID:  p.CallerID(),
		Namespace: p.Namespace(),
		Module:    p.Module(),
		Method:    p.Method(),
		Status:    c.Status(),
		Error:     c.Err,
		ElapsedMs: p.Age().Milliseconds(),
	}
}

// InspectorConfig tunes the traffic inspector.
type InspectorConfig struct {
	// BufferSize caps buffered records; oldest records drop first when
	// tooling cannot keep up.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
	// BatchSize is how many records one publisher pass drains.
	BatchSize int `json:"batch_size" yaml:"batch_size"`
	// FlushInterval is the publisher wake period when no writes nudge it.
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// DefaultInspectorConfig returns production defaults.
func DefaultInspectorConfig() InspectorConfig {
	return InspectorConfig{
		BufferSize:    4096,
		BatchSize:     64,
		FlushInterval: 250 * time.Millisecond,
	}
}

// Inspector publishes bridge traffic to NATS subjects of the form
//
//	bridgekit.<org>.<host>.bridge.traffic.<namespace>.<module>
//
// so external tooling can observe invocations without attaching a debugger.
// Records flow through a fixed circular buffer with a drop-oldest policy, so
// a slow or disconnected NATS server costs records, never dispatch latency.
type Inspector struct {
	client *natsclient.Client
	host   types.HostMeta
	cfg    InspectorConfig

	buf     buffer.Buffer[TrafficRecord]
	wake    chan struct{}
	stop    chan struct{}
	drained chan struct{}
	started atomic.Bool
	stopped atomic.Bool

	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewInspector builds an inspector publishing through the given client.
func NewInspector(client *natsclient.Client, host types.HostMeta, cfg InspectorConfig, logger *slog.Logger, metrics *metric.Metrics) (*Inspector, error) {
	if client == nil {
		return nil, errors.New(errors.KindInvalidTarget, "Inspector", "New", "nil NATS client")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultInspectorConfig().BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultInspectorConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultInspectorConfig().FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	buf, err := buffer.NewCircularBuffer[TrafficRecord](cfg.BufferSize,
		buffer.WithOverflowPolicy[TrafficRecord](buffer.DropOldest))
	if err != nil {
		return nil, errors.Wrap(err, "Inspector", "New", "create record buffer")
	}

	return &Inspector{
		client:  client,
		host:    host,
		cfg:     cfg,
		buf:     buf,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		drained: make(chan struct{}),
		logger:  logger.With("component", "Inspector"),
		metrics: metrics,
	}, nil
}

// Start launches the publisher goroutine.
func (i *Inspector) Start() error {
	if !i.started.CompareAndSwap(false, true) {
		return errors.Wrap(errors.ErrAlreadyStarted, "Inspector", "Start", "start")
	}
	go i.run()
	return nil
}

// Stop flushes buffered records and stops the publisher. Records written
// after Stop are dropped silently.
func (i *Inspector) Stop(timeout time.Duration) error {
	if !i.started.Load() || !i.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(i.stop)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-i.drained:
		return nil
	case <-timer.C:
		return errors.WrapTransient(errors.ErrTimeout, "Inspector", "Stop", "flush")
	}
}

// Record buffers one traffic record. Never blocks; when the buffer is full
// the oldest record is dropped.
func (i *Inspector) Record(rec TrafficRecord) {
	if i.stopped.Load() {
		return
	}
	if err := i.buf.Write(rec); err != nil {
		i.logger.Debug("traffic record dropped", "error", err)
		return
	}
	select {
	case i.wake <- struct{}{}:
	default:
	}
}

// Buffered reports how many records wait for publication.
func (i *Inspector) Buffered() int {
	return i.buf.Size()
}

func (i *Inspector) run() {
	defer close(i.drained)

	ticker := time.NewTicker(i.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.stop:
			i.flush()
			return
		case <-i.wake:
			i.flush()
		case <-ticker.C:
			i.flush()
		}
	}
}

func (i *Inspector) flush() {
	for {
		batch := i.buf.ReadBatch(i.cfg.BatchSize)
		if len(batch) == 0 {
			return
		}
		for _, rec := range batch {
			i.publish(rec)
		}
		if len(batch) < i.cfg.BatchSize {
			return
		}
	}
}

// publish sends one record. Failures are logged and counted, never
// propagated: inspection must not disturb dispatch.
func (i *Inspector) publish(rec TrafficRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		i.logger.Warn("traffic record marshal failed",
			"request_id", rec.RequestID, "error", err)
		return
	}

	subject := i.subject(rec.Namespace, rec.Module)
	if err := i.client.Publish(context.Background(), subject, data); err != nil {
		i.logger.Debug("traffic publish failed",
			"subject", subject, "request_id", rec.RequestID, "error", err)
		if i.metrics != nil {
			i.metrics.RecordError("Inspector", errors.KindOf(err).String())
		}
	}
}

func (i *Inspector) subject(namespace, moduleName string) string {
	return "bridgekit." + subjectToken(i.host.Org) + "." + subjectToken(i.host.Host) +
		".bridge.traffic." + subjectToken(namespace) + "." + subjectToken(moduleName)
}

// subjectToken makes an identifier safe for use as one NATS subject token.
// Dots would introduce extra subject levels and wildcards would change
// subscription semantics, so all are flattened to underscores.
func subjectToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '_'
		default:
			return r
		}
	}, s)
}
