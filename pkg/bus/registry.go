package bus

import (
	"sort"
	"sync"

	"github.com/coachpo/hookbus/errs"
)

// Registry maps topics to their hooks. All operations are safe for
// concurrent use; lookups return live hooks whose invocation path snapshots
// the callback list, so registration never corrupts an in-flight dispatch.
type Registry struct {
	mu    sync.RWMutex
	hooks map[Topic]*Hook
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[Topic]*Hook)}
}

// Register adds the callback under the topic, creating the hook on first
// use and merging into the existing set otherwise.
func (r *Registry) Register(topic Topic, cb Callback) error {
	if !cb.Valid() {
		return errs.New("bus/registry", errs.CodeInvalidCallback,
			errs.WithMessage("nil handler"),
			errs.WithTopic(string(topic)))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hooks[topic]
	if !ok {
		h = NewHook(topic)
		r.hooks[topic] = h
	}
	return h.Add(cb)
}

// RegisterHook installs a pre-built hook. When the topic already has one,
// the callbacks merge into the existing set; replacement never happens.
// Returns the number of callbacks added.
func (r *Registry) RegisterHook(h *Hook) (int, error) {
	if h == nil {
		return 0, errs.New("bus/registry", errs.CodeInvalid,
			errs.WithMessage("nil hook"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.hooks[h.Topic()]
	if !ok {
		r.hooks[h.Topic()] = h
		return h.Len(), nil
	}
	if existing == h {
		return 0, nil
	}
	return existing.Merge(h), nil
}

// Unregister removes every callback matching cb's identity under the topic,
// pruning the topic once its set empties. Absent topics or callbacks are
// no-ops; the removed count is returned.
func (r *Registry) Unregister(topic Topic, cb Callback) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hooks[topic]
	if !ok {
		return 0
	}
	removed := h.Remove(cb)
	if h.Len() == 0 {
		delete(r.hooks, topic)
	}
	return removed
}

// UnregisterTopic removes the topic and its whole hook. Removing an absent
// topic is a no-op; the return reports whether anything was removed.
func (r *Registry) UnregisterTopic(topic Topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hooks[topic]; !ok {
		return false
	}
	delete(r.hooks, topic)
	return true
}

// Lookup returns the hook registered under the topic.
func (r *Registry) Lookup(topic Topic) (*Hook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hooks[topic]
	return h, ok
}

// Topics returns a sorted copy of the registered topics.
func (r *Registry) Topics() []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Topic, 0, len(r.hooks))
	for topic := range r.hooks {
		out = append(out, topic)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = make(map[Topic]*Hook)
}
