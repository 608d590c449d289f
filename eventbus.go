package sekai

import "reflect"

// MaxEventTypes defines the maximum number of unique user event types that
// can be registered in an EventBus.
const MaxEventTypes = 256

// EventDesc describes a world event. Table is the table the event applies
// to, Entity is set for entity-level events and IDs lists the ids involved.
type EventDesc struct {
	Event  Entity
	IDs    []ID
	Table  *Table
	Other  *Table
	Entity Entity
}

// Emitter receives world events. The world never holds observers itself, it
// forwards events to the emitters registered on its bus.
type Emitter interface {
	Emit(w *World, desc *EventDesc)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(w *World, desc *EventDesc)

// Emit calls f.
func (f EmitterFunc) Emit(w *World, desc *EventDesc) { f(w, desc) }

// EventBus dispatches world events to emitters, and typed user events to
// subscribers. Publishing is allocation-free.
type EventBus struct {
	eventTypeMap    map[reflect.Type]uint8
	handlers        [MaxEventTypes][]interface{}
	nextEventTypeID uint8

	emitters [lastBuiltin][]Emitter
}

// Observe registers an emitter for a builtin world event such as
// OnTableCreate or OnAdd.
//
// Parameters:
//   - bus: The EventBus instance to register with.
//   - event: The builtin event entity.
//   - e: The emitter called for each matching event.
func Observe(bus *EventBus, event Entity, e Emitter) {
	ecsAssert(event >= OnAdd && event < lastBuiltin, CodeInvalidParameter, "%s is not an event", event)
	bus.emitters[event] = append(bus.emitters[event], e)
}

// HasObservers reports whether any emitter listens to event.
func (bus *EventBus) HasObservers(event Entity) bool {
	return event < lastBuiltin && len(bus.emitters[event]) > 0
}

// Emit forwards a world event to the registered emitters.
func (bus *EventBus) Emit(w *World, desc *EventDesc) {
	for _, e := range bus.emitters[desc.Event] {
		e.Emit(w, desc)
	}
}

// Subscribe registers a handler function to be called when an event of type `T`
// is published. Handlers are stored in the order they are subscribed.
//
// Parameters:
//   - bus: The EventBus instance to subscribe to.
//   - handler: A function that takes a single argument of type `T`.
func Subscribe[T any](bus *EventBus, handler func(T)) {
	t := reflect.TypeFor[T]()
	id := bus.getEventTypeID(t)
	if cap(bus.handlers[id]) == 0 {
		bus.handlers[id] = make([]interface{}, 0, 4)
	}
	bus.handlers[id] = append(bus.handlers[id], handler)
}

// Publish broadcasts an event of type `T` to all registered handlers for that
// type. The handlers are called synchronously in the order they were subscribed.
//
// Parameters:
//   - bus: The EventBus instance to publish to.
//   - event: The event data of type `T` to be sent to handlers.
func Publish[T any](bus *EventBus, event T) {
	t := reflect.TypeFor[T]()
	if id, ok := bus.eventTypeMap[t]; ok {
		for _, h := range bus.handlers[id] {
			h.(func(T))(event)
		}
	}
}

// getEventTypeID retrieves or assigns an ID for the event type.
func (bus *EventBus) getEventTypeID(t reflect.Type) uint8 {
	if bus.eventTypeMap == nil {
		bus.eventTypeMap = make(map[reflect.Type]uint8)
	}
	if id, ok := bus.eventTypeMap[t]; ok {
		return id
	}
	ecsAssert(int(bus.nextEventTypeID) < MaxEventTypes-1, CodeOutOfRange, "too many event types")
	id := bus.nextEventTypeID
	bus.nextEventTypeID++
	bus.eventTypeMap[t] = id
	return id
}

// emit sends an event if anyone listens.
func (w *World) emit(desc *EventDesc) {
	if w.events.HasObservers(desc.Event) {
		w.events.Emit(w, desc)
	}
}
