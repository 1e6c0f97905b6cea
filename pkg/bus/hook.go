package bus

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/coachpo/hookbus/errs"
	"github.com/coachpo/hookbus/observability"
)

// FaultSink receives handler failures absorbed during dispatch.
type FaultSink func(record observability.FaultRecord)

// Hook is the ordered callback set registered under one topic. Callbacks are
// invoked in insertion order; a failing callback never prevents its
// successors from running.
type Hook struct {
	mu    sync.RWMutex
	topic Topic
	dedup bool
	cbs   []Callback
}

// NewHook creates an empty hook for the topic. Duplicate rejection is on by
// default.
func NewHook(topic Topic) *Hook {
	return &Hook{topic: topic, dedup: true}
}

// SetDedup toggles duplicate rejection for subsequent adds.
func (h *Hook) SetDedup(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dedup = on
}

// Topic returns the topic the hook serves.
func (h *Hook) Topic() Topic { return h.topic }

// Add appends the callback. Under the dedup policy an identity match is
// rejected with CodeDuplicateCallback and the set is left unchanged.
func (h *Hook) Add(cb Callback) error {
	if !cb.Valid() {
		return errs.New("bus/hook", errs.CodeInvalidCallback,
			errs.WithMessage("nil handler"),
			errs.WithTopic(string(h.topic)),
			errs.WithField("variant", cb.Variant().String()))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dedup {
		for _, existing := range h.cbs {
			if existing.Matches(cb) {
				return errs.New("bus/hook", errs.CodeDuplicateCallback,
					errs.WithTopic(string(h.topic)),
					errs.WithField("variant", cb.Variant().String()))
			}
		}
	}
	h.cbs = append(h.cbs, cb)
	return nil
}

// Remove deletes every callback matching cb's identity and returns the
// removed count. Removing an absent callback is a no-op.
func (h *Hook) Remove(cb Callback) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.cbs[:0]
	removed := 0
	for _, existing := range h.cbs {
		if existing.Matches(cb) {
			removed++
			continue
		}
		kept = append(kept, existing)
	}
	for i := len(kept); i < len(h.cbs); i++ {
		h.cbs[i] = Callback{}
	}
	h.cbs = kept
	return removed
}

// Merge appends the other hook's callbacks subject to this hook's dedup
// policy, returning the number actually added.
func (h *Hook) Merge(other *Hook) int {
	if other == nil {
		return 0
	}
	added := 0
	for _, cb := range other.Callbacks() {
		if err := h.Add(cb); err == nil {
			added++
		}
	}
	return added
}

// Len returns the number of registered callbacks.
func (h *Hook) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.cbs)
}

// Callbacks returns a copy of the callback list in insertion order.
func (h *Hook) Callbacks() []Callback {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Callback, len(h.cbs))
	copy(out, h.cbs)
	return out
}

// invokeAll runs every callback against the delivery, in insertion order,
// with per-callback fault isolation. It iterates a snapshot, so callbacks may
// register or unregister reentrantly. Returns the number of callbacks
// attempted.
func (h *Hook) invokeAll(d Delivery, sink FaultSink) int {
	cbs := h.Callbacks()
	for _, cb := range cbs {
		if record := invokeOne(cb, d); record != nil && sink != nil {
			sink(*record)
		}
	}
	return len(cbs)
}

// invokeOne runs a single callback, converting error returns and recovered
// panics into fault records.
func invokeOne(cb Callback, d Delivery) (record *observability.FaultRecord) {
	defer func() {
		if r := recover(); r != nil {
			record = &observability.FaultRecord{
				Topic:   string(d.Topic),
				Seq:     d.Seq,
				Variant: cb.Variant().String(),
				Error:   fmt.Sprintf("handler panic: %v", r),
				Stack:   string(debug.Stack()),
				At:      time.Now(),
			}
		}
	}()
	if err := cb.call(d); err != nil {
		return &observability.FaultRecord{
			Topic:   string(d.Topic),
			Seq:     d.Seq,
			Variant: cb.Variant().String(),
			Error:   err.Error(),
			At:      time.Now(),
		}
	}
	return nil
}
