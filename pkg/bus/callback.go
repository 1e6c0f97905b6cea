package bus

import (
	"reflect"
)

// Variant identifies a callback's invocation shape.
type Variant uint8

const (
	// VariantBare handlers receive no arguments.
	VariantBare Variant = iota + 1
	// VariantWithTopic handlers receive the topic only.
	VariantWithTopic
	// VariantWithData handlers receive the payload only.
	VariantWithData
	// VariantWithTopicData handlers receive topic and payload.
	VariantWithTopicData
	// VariantWithDelivery handlers receive the combined delivery record.
	VariantWithDelivery
	// VariantWithState handlers receive the delivery record plus a value
	// bound at construction time.
	VariantWithState
)

// String renders the variant for logs and fault records.
func (v Variant) String() string {
	switch v {
	case VariantBare:
		return "bare"
	case VariantWithTopic:
		return "with_topic"
	case VariantWithData:
		return "with_data"
	case VariantWithTopicData:
		return "with_topic_data"
	case VariantWithDelivery:
		return "with_delivery"
	case VariantWithState:
		return "with_state"
	default:
		return "unknown"
	}
}

// Callback pairs a handler function with its invocation shape. Identity is
// the pair (function code pointer, variant); two closures created from the
// same function body therefore compare equal, as do the same method value
// taken twice. The state value bound by WithState never participates in
// identity.
type Callback struct {
	variant Variant
	key     uintptr
	call    func(Delivery) error
}

func newCallback(variant Variant, fn any, call func(Delivery) error) Callback {
	return Callback{
		variant: variant,
		key:     reflect.ValueOf(fn).Pointer(),
		call:    call,
	}
}

// Bare wraps a handler that wants no arguments.
func Bare(fn func() error) Callback {
	if fn == nil {
		return Callback{variant: VariantBare}
	}
	return newCallback(VariantBare, fn, func(Delivery) error {
		return fn()
	})
}

// WithTopic wraps a handler that wants the topic only.
func WithTopic(fn func(Topic) error) Callback {
	if fn == nil {
		return Callback{variant: VariantWithTopic}
	}
	return newCallback(VariantWithTopic, fn, func(d Delivery) error {
		return fn(d.Topic)
	})
}

// WithData wraps a handler that wants the payload only.
func WithData(fn func(any) error) Callback {
	if fn == nil {
		return Callback{variant: VariantWithData}
	}
	return newCallback(VariantWithData, fn, func(d Delivery) error {
		return fn(d.Data)
	})
}

// WithTopicData wraps a handler that wants topic and payload.
func WithTopicData(fn func(Topic, any) error) Callback {
	if fn == nil {
		return Callback{variant: VariantWithTopicData}
	}
	return newCallback(VariantWithTopicData, fn, func(d Delivery) error {
		return fn(d.Topic, d.Data)
	})
}

// WithDelivery wraps a handler that wants the combined delivery record.
func WithDelivery(fn func(Delivery) error) Callback {
	if fn == nil {
		return Callback{variant: VariantWithDelivery}
	}
	return newCallback(VariantWithDelivery, fn, func(d Delivery) error {
		return fn(d)
	})
}

// WithState wraps a handler that wants the delivery record plus state bound
// here. Re-binding the same handler with different state still yields the
// same identity.
func WithState(fn func(Delivery, any) error, state any) Callback {
	if fn == nil {
		return Callback{variant: VariantWithState}
	}
	return newCallback(VariantWithState, fn, func(d Delivery) error {
		return fn(d, state)
	})
}

// Valid reports whether the callback wraps a usable handler.
func (c Callback) Valid() bool { return c.call != nil }

// Variant returns the callback's invocation shape.
func (c Callback) Variant() Variant { return c.variant }

// Matches reports whether two callbacks share the same identity.
func (c Callback) Matches(other Callback) bool {
	return c.key != 0 && c.key == other.key && c.variant == other.variant
}
