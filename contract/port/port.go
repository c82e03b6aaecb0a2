package port

import "context"

// Listener observes emissions on an outbound port.
// Listeners run on the broadcaster's goroutine and must not block for long.
type Listener func(ctx context.Context, msg Message)

// Subscription is the handle returned when a Listener is attached.
// Unsubscribe detaches the listener; calling it more than once is a no-op.
type Subscription interface {
	Unsubscribe()
}

// Inbound accepts values destined for the engine.
type Inbound interface {
	Send(ctx context.Context, msg Message) error
}

// Outbound broadcasts engine emissions to all currently attached listeners.
type Outbound interface {
	Subscribe(l Listener) (Subscription, error)
}

// Engine is a convenience interface that combines both port directions.
// Any transport that implements Inbound and Outbound can be passed to the bridge.
//
// The bridge never owns the engine: it only attaches and detaches listeners and sends values.
type Engine interface {
	Inbound
	Outbound
}
