package bus

import (
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/coachpo/hookbus/errs"
)

// Retry wraps a callback so a failing invocation is re-attempted with
// exponential backoff, up to maxAttempts total attempts with sleeps capped
// at maxInterval. The wrapper keeps the underlying callback's identity, so
// it deduplicates and removes interchangeably with the original. Retries
// run inline on the dispatch worker and delay later events; a handler panic
// is not retried. When every attempt fails the last error surfaces as a
// single handler fault.
func Retry(cb Callback, maxAttempts int, maxInterval time.Duration) Callback {
	if !cb.Valid() || maxAttempts <= 1 {
		return cb
	}
	inner := cb.call
	cb.call = func(d Delivery) error {
		backoffCfg := backoff.NewExponentialBackOff()
		if maxInterval > 0 {
			backoffCfg.MaxInterval = maxInterval
			if backoffCfg.InitialInterval > maxInterval {
				backoffCfg.InitialInterval = maxInterval
			}
		}
		var err error
		for attempt := 1; ; attempt++ {
			err = inner(d)
			if err == nil {
				return nil
			}
			if attempt >= maxAttempts {
				break
			}
			sleep := backoffCfg.NextBackOff()
			if sleep == backoff.Stop {
				sleep = maxInterval
			}
			time.Sleep(sleep)
		}
		return errs.New("bus/retry", errs.CodeHandlerFault,
			errs.WithMessage("all attempts failed"),
			errs.WithTopic(string(d.Topic)),
			errs.WithSeq(d.Seq),
			errs.WithField("attempts", strconv.Itoa(maxAttempts)),
			errs.WithCause(err))
	}
	return cb
}
