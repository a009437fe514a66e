package session

import (
	"github.com/asaskevich/EventBus"
)

// BusTopic is the EventBus topic every lifecycle and message event is
// published on. Observers (realtime broadcaster, webhook dispatcher)
// subscribe asynchronously so publishing never blocks session processing.
const BusTopic = "session:events"

// BusEmitter publishes session events on an in-process event bus.
type BusEmitter struct {
	bus EventBus.Bus
}

func NewBusEmitter(bus EventBus.Bus) *BusEmitter {
	return &BusEmitter{bus: bus}
}

func (e *BusEmitter) Emit(evt Event) {
	e.bus.Publish(BusTopic, evt)
}
