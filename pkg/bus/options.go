package bus

import (
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/coachpo/hookbus/observability"
)

// Option adjusts engine construction.
type Option func(*Engine)

// WithLogger routes engine logs to log instead of the process default.
func WithLogger(log observability.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithFaultLog journals handler faults into faults instead of the engine's
// own bounded log.
func WithFaultLog(faults *observability.FaultLog) Option {
	return func(e *Engine) {
		if faults != nil {
			e.faults = faults
		}
	}
}

// WithPublishLimit throttles publishers to eventsPerSec with the given
// burst. Publish waits for a token; TryPublish fails with CodeThrottled.
func WithPublishLimit(eventsPerSec float64, burst int) Option {
	return func(e *Engine) {
		if eventsPerSec > 0 && burst > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(eventsPerSec), burst)
		}
	}
}

// WithMeterProvider sources the engine's instruments from mp instead of the
// global OpenTelemetry provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) {
		if mp != nil {
			e.meterProvider = mp
		}
	}
}
