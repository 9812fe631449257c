// Package eventbus provides in-process fan-out publish/subscribe.
package eventbus

// Event is anything published on the scheduling bus.
type Event interface {
	EventType() string
}

// EventBus implements a simple publish/subscribe event bus.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the default EventBus, a TypedBus over Event.
type Bus struct {
	*TypedBus[Event]
}

// New creates a new Bus.
func New(opts ...Option) *Bus { return &Bus{TypedBus: NewTyped[Event](opts...)} }
