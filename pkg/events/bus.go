package events

import (
	"context"
	"time"
)

// Publisher broadcasts an event to every server process.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Delivery is one event received from the bus. Raw is the encoded Message,
// ready to be forwarded to clients unchanged.
type Delivery struct {
	Event     Event
	Timestamp time.Time
	Raw       []byte
}

type Handler func(Delivery) error

// Bus is a Publisher that can also be consumed. Subscribe blocks until ctx is
// cancelled or the transport fails.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}
