package frontdesk

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Event is one message delivered by the EventDispatcher. Payload is the
// inbound JSON object without its "type" field.
type Event struct {
	Type    string
	Payload json.RawMessage
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %q has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}

// Listener receives events. Listeners whose dynamic type is comparable
// (pointers, most structs) are registered at most once per event type.
type Listener interface {
	HandleEvent(Event)
}

type funcListener struct{ fn func(Event) }

func (l *funcListener) HandleEvent(e Event) { l.fn(e) }

type registration struct {
	l Listener
}

// EventDispatcher is a registry of listeners keyed by event type. It is
// independent of any connection, so registrations survive reconnects.
type EventDispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]*registration
	log       zerolog.Logger
}

// NewEventDispatcher returns an empty dispatcher.
func NewEventDispatcher(log zerolog.Logger) *EventDispatcher {
	return &EventDispatcher{
		listeners: make(map[string][]*registration),
		log:       log,
	}
}

// Subscribe registers l for eventType and returns a function that removes
// it. Subscribing a comparable listener that is already registered returns
// the existing registration. The returned function may be called any number
// of times.
func (d *EventDispatcher) Subscribe(eventType string, l Listener) (unsubscribe func()) {
	d.mu.Lock()
	reg := d.find(eventType, l)
	if reg == nil {
		reg = &registration{l: l}
		d.listeners[eventType] = append(d.listeners[eventType], reg)
	}
	d.mu.Unlock()
	return func() { d.remove(eventType, reg) }
}

// SubscribeFunc registers fn for eventType. Each call is a distinct
// registration.
func (d *EventDispatcher) SubscribeFunc(eventType string, fn func(Event)) (unsubscribe func()) {
	return d.Subscribe(eventType, &funcListener{fn: fn})
}

// Unsubscribe removes a comparable listener l from eventType. Removing a
// listener that is not registered is a no-op.
func (d *EventDispatcher) Unsubscribe(eventType string, l Listener) {
	d.mu.RLock()
	reg := d.find(eventType, l)
	d.mu.RUnlock()
	if reg != nil {
		d.remove(eventType, reg)
	}
}

func (d *EventDispatcher) remove(eventType string, reg *registration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.listeners[eventType]
	for i, x := range regs {
		if x == reg {
			regs = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(d.listeners, eventType)
		return
	}
	d.listeners[eventType] = regs
}

// Publish delivers an event to every listener registered for eventType,
// synchronously and in registration order. A panicking listener is logged
// and does not stop the others.
func (d *EventDispatcher) Publish(eventType string, payload json.RawMessage) {
	d.mu.RLock()
	regs := append([]*registration(nil), d.listeners[eventType]...)
	d.mu.RUnlock()

	e := Event{Type: eventType, Payload: payload}
	for _, reg := range regs {
		d.deliver(reg.l, e)
	}
}

// PublishValue marshals v and publishes it.
func (d *EventDispatcher) PublishValue(eventType string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		d.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		return
	}
	d.Publish(eventType, b)
}

// Count returns the number of listeners registered for eventType.
func (d *EventDispatcher) Count(eventType string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[eventType])
}

// Clear removes every registration.
func (d *EventDispatcher) Clear() {
	d.mu.Lock()
	d.listeners = make(map[string][]*registration)
	d.mu.Unlock()
}

func (d *EventDispatcher) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("event", e.Type).Interface("panic", r).Msg("event listener panicked")
		}
	}()
	l.HandleEvent(e)
}

func (d *EventDispatcher) find(eventType string, l Listener) *registration {
	for _, reg := range d.listeners[eventType] {
		if sameListener(reg.l, l) {
			return reg
		}
	}
	return nil
}

// sameListener compares listeners without panicking on uncomparable
// dynamic types, which are never considered equal.
func sameListener(a, b Listener) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}
