package engine

import (
	"log/slog"

	"socialsync/pkg/models"
)

// Dispatcher fans UI notifications out to whoever renders them. Delivery is
// best effort: when the consumer falls behind, events are dropped rather
// than blocking an engine run-loop.
type Dispatcher struct {
	events chan models.Event
}

func NewDispatcher(buffer int) *Dispatcher {
	return &Dispatcher{events: make(chan models.Event, buffer)}
}

// Publish queues one event without blocking.
func (d *Dispatcher) Publish(event models.Event) {
	select {
	case d.events <- event:
	default:
		slog.Warn("Dropping UI event, consumer too slow",
			"component", "Dispatcher", "type", event.Type)
	}
}

// Events is the consumer side of the fan-out.
func (d *Dispatcher) Events() <-chan models.Event {
	return d.events
}
