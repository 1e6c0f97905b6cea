package bus

import "time"

// Topic routes an event to the hook registered under it.
type Topic string

// Delivery is the event record handed to handlers: the topic it was
// published under, the opaque payload, and the engine-assigned sequence id.
// The bus never interprets Data.
type Delivery struct {
	Topic Topic
	Data  any
	Seq   uint64
}

// TimerTick is the payload published on timer topics.
type TimerTick struct {
	Interval time.Duration `json:"interval"`
	FiredAt  time.Time     `json:"firedAt"`
}
