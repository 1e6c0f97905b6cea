// Package errs provides structured error types and helpers for hookbus components.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies a bus error category.
type Code string

const (
	// CodeInvalidCapacity indicates a queue or engine constructed with a non-positive capacity.
	CodeInvalidCapacity Code = "invalid_capacity"
	// CodeInvalidCallback indicates a nil or otherwise unusable handler.
	CodeInvalidCallback Code = "invalid_callback"
	// CodeDuplicateCallback indicates a registration that matched an existing callback identity.
	CodeDuplicateCallback Code = "duplicate_callback"
	// CodeQueueFull indicates a non-blocking put against a full queue.
	CodeQueueFull Code = "queue_full"
	// CodeQueueEmpty indicates a non-blocking get against an empty queue.
	CodeQueueEmpty Code = "queue_empty"
	// CodeHandlerFault indicates a handler that returned an error or panicked during dispatch.
	CodeHandlerFault Code = "handler_fault"
	// CodeLifecycle indicates an operation rejected or flagged because of the engine's run state.
	CodeLifecycle Code = "lifecycle"
	// CodeThrottled indicates a publish rejected by the configured rate limiter.
	CodeThrottled Code = "throttled"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_argument"
)

// E captures structured error information produced across the hookbus stack.
type E struct {
	Component string
	Code      Code
	Topic     string
	Seq       uint64
	Message   string
	Metadata  map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the component and error code.
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component: strings.TrimSpace(component),
		Code:      code,
		Topic:     "",
		Seq:       0,
		Message:   "",
		Metadata:  nil,
		cause:     nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithTopic records the topic the failing operation addressed.
func WithTopic(topic string) Option {
	trimmed := strings.TrimSpace(topic)
	return func(e *E) {
		e.Topic = trimmed
	}
}

// WithSeq records the sequence id of the event involved in the failure.
func WithSeq(seq uint64) Option {
	return func(e *E) {
		e.Seq = seq
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithMetadata merges the provided metadata into the error envelope.
func WithMetadata(meta map[string]string) Option {
	return func(e *E) {
		if len(meta) == 0 {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, len(meta))
		}
		for k, v := range meta {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			e.Metadata[key] = strings.TrimSpace(v)
		}
	}
}

// WithField appends a single metadata key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, 1)
		}
		e.Metadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	component := strings.TrimSpace(e.Component)
	if component == "" {
		component = "unknown"
	}
	parts = append(parts, "component="+component)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Topic != "" {
		parts = append(parts, "topic="+strconv.Quote(e.Topic))
	}
	if e.Seq > 0 {
		parts = append(parts, "seq="+strconv.FormatUint(e.Seq, 10))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Metadata[k]))
		}
		parts = append(parts, "meta="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the bus error code from err, or an empty Code when err
// carries none.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

// IsFull reports whether err represents a full-queue rejection.
func IsFull(err error) bool { return CodeOf(err) == CodeQueueFull }

// IsEmpty reports whether err represents an empty-queue miss.
func IsEmpty(err error) bool { return CodeOf(err) == CodeQueueEmpty }

// IsDuplicate reports whether err represents a duplicate callback registration.
func IsDuplicate(err error) bool { return CodeOf(err) == CodeDuplicateCallback }

// IsThrottled reports whether err represents a rate-limiter rejection.
func IsThrottled(err error) bool { return CodeOf(err) == CodeThrottled }
