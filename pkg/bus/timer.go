package bus

import (
	"context"
	"time"

	"github.com/coachpo/hookbus/errs"
	"github.com/coachpo/hookbus/observability"
)

type busTimer struct {
	interval time.Duration
	topic    Topic
}

// Timer registers a recurring timer and returns its canonical topic,
// "hookbus.timer." followed by the interval. Registration is idempotent per
// interval. While the engine runs, a ticker goroutine publishes a TimerTick
// on the topic every interval; otherwise the timer arms on the next Start.
// Callers subscribe to the returned topic like any other.
func (e *Engine) Timer(interval time.Duration) (Topic, error) {
	if interval <= 0 {
		return "", errs.New("bus/timer", errs.CodeInvalid,
			errs.WithMessage("interval must be positive"),
			errs.WithField("interval", interval.String()))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[interval]; ok {
		return t.topic, nil
	}
	t := &busTimer{interval: interval, topic: TimerTopic(interval)}
	e.timers[interval] = t
	if e.running {
		ctx := e.runCtx
		e.wg.Go(func() { e.runTimer(ctx, t) })
	}
	return t.topic, nil
}

// TimerTopic returns the topic a Timer registered for interval publishes on.
func TimerTopic(interval time.Duration) Topic {
	return Topic("hookbus.timer." + interval.String())
}

// armTimers spawns a ticker goroutine per registered timer. Caller holds
// e.mu; the goroutines exit when ctx is canceled and join on e.wg.
func (e *Engine) armTimers(ctx context.Context) {
	for _, t := range e.timers {
		t := t
		e.wg.Go(func() { e.runTimer(ctx, t) })
	}
}

func (e *Engine) runTimer(ctx context.Context, t *busTimer) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tick := TimerTick{Interval: t.interval, FiredAt: now}
			if err := e.TryPublish(t.topic, tick); err != nil {
				e.log.Warn("timer tick dropped",
					observability.Field{Key: "engine", Value: e.id},
					observability.Field{Key: "topic", Value: string(t.topic)},
					observability.Field{Key: "error", Value: err.Error()})
			}
		}
	}
}
