// Package bus implements an in-process publish/subscribe event engine: a
// bounded FIFO queue of topic-tagged events drained by a single worker that
// invokes registered callbacks in registration order with per-handler fault
// isolation.
package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/coachpo/hookbus/config"
	"github.com/coachpo/hookbus/errs"
	"github.com/coachpo/hookbus/observability"
	"github.com/coachpo/hookbus/pkg/ring"
)

// Engine owns the event queue, the topic registry, and the dispatch worker.
// Publishing is legal in any lifecycle state; events accumulate while the
// engine is stopped and drain once it starts. Stop pauses dispatch without
// flushing the queue.
type Engine struct {
	id            string
	queue         *ring.Queue[Delivery]
	registry      *Registry
	log           observability.Logger
	faults        *observability.FaultLog
	limiter       *rate.Limiter
	meterProvider metric.MeterProvider

	mu      sync.Mutex
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      conc.WaitGroup

	seq atomic.Uint64

	timers map[time.Duration]*busTimer

	publishedCounter metric.Int64Counter
	deliveredCounter metric.Int64Counter
	faultCounter     metric.Int64Counter
	droppedCounter   metric.Int64Counter
	lifecycleCounter metric.Int64Counter
	depthGauge       metric.Int64UpDownCounter
	dispatchDuration metric.Float64Histogram
}

// New constructs a stopped engine with a queue of the given capacity.
func New(queueCapacity int, opts ...Option) (*Engine, error) {
	queue, err := ring.New[Delivery](queueCapacity)
	if err != nil {
		return nil, err
	}

	e := new(Engine)
	e.id = uuid.NewString()
	e.queue = queue
	e.registry = NewRegistry()
	e.log = observability.Log()
	e.faults = observability.NewFaultLog(defaultFaultLogSize)
	e.timers = make(map[time.Duration]*busTimer)

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	mp := e.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("hookbus")
	e.publishedCounter, _ = meter.Int64Counter("hookbus.events.published",
		metric.WithDescription("Number of events accepted onto the queue"),
		metric.WithUnit("{event}"))
	e.deliveredCounter, _ = meter.Int64Counter("hookbus.handlers.invoked",
		metric.WithDescription("Number of handler invocations attempted"),
		metric.WithUnit("{invocation}"))
	e.faultCounter, _ = meter.Int64Counter("hookbus.handlers.faults",
		metric.WithDescription("Number of handler faults absorbed during dispatch"),
		metric.WithUnit("{fault}"))
	e.droppedCounter, _ = meter.Int64Counter("hookbus.events.dropped",
		metric.WithDescription("Number of events rejected by a full queue or the rate limiter"),
		metric.WithUnit("{event}"))
	e.lifecycleCounter, _ = meter.Int64Counter("hookbus.lifecycle.warnings",
		metric.WithDescription("Number of redundant start/stop calls"),
		metric.WithUnit("{call}"))
	e.depthGauge, _ = meter.Int64UpDownCounter("hookbus.queue.depth",
		metric.WithDescription("Current queue occupancy"),
		metric.WithUnit("{event}"))
	e.dispatchDuration, _ = meter.Float64Histogram("hookbus.dispatch.duration",
		metric.WithDescription("Latency of a single event dispatch"),
		metric.WithUnit("ms"))

	return e, nil
}

// NewFromConfig constructs an engine from a validated configuration block.
// Options are applied after the configuration.
func NewFromConfig(cfg config.EngineConfig, opts ...Option) (*Engine, error) {
	base := []Option{WithFaultLog(observability.NewFaultLog(cfg.FaultLogSize))}
	if cfg.PublishRate > 0 {
		base = append(base, WithPublishLimit(cfg.PublishRate, cfg.PublishBurst))
	}
	return New(cfg.QueueCapacity, append(base, opts...)...)
}

const defaultFaultLogSize = 128

// ID returns the engine instance id.
func (e *Engine) ID() string { return e.id }

// Running reports whether the dispatch worker is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start spawns the dispatch worker and arms registered timers. Starting a
// running engine is a no-op that logs a warning.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.warnLifecycle("start", "engine already started")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.runCtx = ctx
	e.cancel = cancel
	e.running = true
	e.wg.Go(func() { e.run(ctx) })
	e.armTimers(ctx)
	e.log.Info("engine started",
		observability.Field{Key: "engine", Value: e.id},
		observability.Field{Key: "capacity", Value: e.queue.Cap()},
		observability.Field{Key: "depth", Value: e.queue.Len()})
}

// Stop halts dispatch: it signals the worker and timers, then waits for any
// in-flight handler invocation to finish. Queued events are retained for the
// next Start. Stopping a stopped engine is a no-op that logs a warning.
// Stop must not be called from inside a handler.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		e.warnLifecycle("stop", "engine already stopped")
		return
	}
	e.cancel()
	e.wg.Wait()
	e.cancel = nil
	e.runCtx = nil
	e.running = false
	e.log.Info("engine stopped",
		observability.Field{Key: "engine", Value: e.id},
		observability.Field{Key: "retained", Value: e.queue.Len()})
}

// Publish enqueues an event, waiting for queue space. The wait ends when a
// slot frees or ctx is done. The event is stamped with the next sequence id
// and accepted regardless of the engine's run state.
func (e *Engine) Publish(ctx context.Context, topic Topic, data any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if topic == "" {
		return errs.New("bus/engine", errs.CodeInvalid, errs.WithMessage("topic required"))
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return errs.New("bus/engine", errs.CodeThrottled,
				errs.WithTopic(string(topic)), errs.WithCause(err))
		}
	}
	d := Delivery{Topic: topic, Data: data, Seq: e.seq.Add(1)}
	if err := e.queue.Put(ctx, d); err != nil {
		return err
	}
	e.recordPublished(ctx, topic)
	return nil
}

// TryPublish enqueues an event without blocking. A full queue fails with
// CodeQueueFull; a limiter rejection fails with CodeThrottled.
func (e *Engine) TryPublish(topic Topic, data any) error {
	if topic == "" {
		return errs.New("bus/engine", errs.CodeInvalid, errs.WithMessage("topic required"))
	}
	ctx := context.Background()
	if e.limiter != nil && !e.limiter.Allow() {
		if e.droppedCounter != nil {
			e.droppedCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("topic", string(topic)),
				attribute.String("reason", "throttled")))
		}
		return errs.New("bus/engine", errs.CodeThrottled, errs.WithTopic(string(topic)))
	}
	d := Delivery{Topic: topic, Data: data, Seq: e.seq.Add(1)}
	if err := e.queue.TryPut(d); err != nil {
		if e.droppedCounter != nil {
			e.droppedCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("topic", string(topic)),
				attribute.String("reason", "queue_full")))
		}
		return err
	}
	e.recordPublished(ctx, topic)
	return nil
}

// Register adds the callback under the topic, merging into any existing set.
func (e *Engine) Register(topic Topic, cb Callback) error {
	return e.registry.Register(topic, cb)
}

// RegisterHook installs a pre-built hook, merging when the topic is taken.
func (e *Engine) RegisterHook(h *Hook) (int, error) {
	return e.registry.RegisterHook(h)
}

// Unregister removes every callback matching cb under the topic.
func (e *Engine) Unregister(topic Topic, cb Callback) int {
	return e.registry.Unregister(topic, cb)
}

// UnregisterTopic removes the topic and its whole hook.
func (e *Engine) UnregisterTopic(topic Topic) bool {
	return e.registry.UnregisterTopic(topic)
}

// Lookup returns the hook registered under the topic.
func (e *Engine) Lookup(topic Topic) (*Hook, bool) {
	return e.registry.Lookup(topic)
}

// Topics returns the sorted registered topics.
func (e *Engine) Topics() []Topic { return e.registry.Topics() }

// Hooks returns the number of registered topics.
func (e *Engine) Hooks() int { return e.registry.Len() }

// Depth returns the current queue occupancy.
func (e *Engine) Depth() int { return e.queue.Len() }

// QueueCapacity returns the queue capacity.
func (e *Engine) QueueCapacity() int { return e.queue.Cap() }

// Faults exposes the engine's fault journal.
func (e *Engine) Faults() *observability.FaultLog { return e.faults }

// SetQueueCapacity re-buffers retained events into a queue of the new
// capacity. It is rejected while the engine runs, and fails when the
// retained events do not fit.
func (e *Engine) SetQueueCapacity(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errs.New("bus/engine", errs.CodeLifecycle,
			errs.WithMessage("cannot resize queue while running"))
	}
	return e.queue.Resize(n)
}

// Clear drops all pending events and every registration. It is rejected
// while the engine runs. Registered timers stay armed for the next Start;
// their events simply find no hooks.
func (e *Engine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errs.New("bus/engine", errs.CodeLifecycle,
			errs.WithMessage("cannot clear while running"))
	}
	dropped := 0
	for {
		if _, err := e.queue.TryGet(); err != nil {
			break
		}
		dropped++
		if e.depthGauge != nil {
			e.depthGauge.Add(context.Background(), -1)
		}
	}
	e.registry.Clear()
	e.log.Info("engine cleared",
		observability.Field{Key: "engine", Value: e.id},
		observability.Field{Key: "dropped", Value: dropped})
	return nil
}

// run is the dispatch worker: it blocks on the queue until an event arrives
// or Stop cancels ctx. An event dequeued before cancellation is fully
// dispatched before the worker exits.
func (e *Engine) run(ctx context.Context) {
	for {
		d, err := e.queue.Get(ctx)
		if err != nil {
			return
		}
		if e.depthGauge != nil {
			e.depthGauge.Add(ctx, -1)
		}
		e.dispatch(d)
	}
}

// dispatch resolves the topic's hook and invokes its callbacks in
// registration order. Events without a hook are dropped silently.
func (e *Engine) dispatch(d Delivery) {
	ctx := context.Background()
	start := time.Now()

	hook, ok := e.registry.Lookup(d.Topic)
	if !ok {
		e.log.Debug("no hook for topic",
			observability.Field{Key: "engine", Value: e.id},
			observability.Field{Key: "topic", Value: string(d.Topic)},
			observability.Field{Key: "seq", Value: d.Seq})
		return
	}

	attempted := hook.invokeAll(d, e.sinkFault)

	if e.deliveredCounter != nil {
		e.deliveredCounter.Add(ctx, int64(attempted), metric.WithAttributes(
			attribute.String("topic", string(d.Topic))))
	}
	if e.dispatchDuration != nil {
		e.dispatchDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
			attribute.String("topic", string(d.Topic))))
	}
}

// sinkFault is the hook fault sink: it tags the record with the engine id,
// journals it, logs it, and counts it.
func (e *Engine) sinkFault(record observability.FaultRecord) {
	record.Engine = e.id
	if e.faults != nil {
		e.faults.Offer(record)
	}
	e.log.Error("handler fault",
		observability.Field{Key: "engine", Value: e.id},
		observability.Field{Key: "topic", Value: record.Topic},
		observability.Field{Key: "seq", Value: record.Seq},
		observability.Field{Key: "variant", Value: record.Variant},
		observability.Field{Key: "error", Value: record.Error})
	if e.faultCounter != nil {
		e.faultCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("topic", record.Topic),
			attribute.String("variant", record.Variant)))
	}
}

func (e *Engine) recordPublished(ctx context.Context, topic Topic) {
	if e.publishedCounter != nil {
		e.publishedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("topic", string(topic))))
	}
	if e.depthGauge != nil {
		e.depthGauge.Add(ctx, 1)
	}
}

func (e *Engine) warnLifecycle(op, msg string) {
	e.log.Warn(msg,
		observability.Field{Key: "engine", Value: e.id},
		observability.Field{Key: "op", Value: op})
	if e.lifecycleCounter != nil {
		e.lifecycleCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("op", op)))
	}
}
