package event

import (
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultMaxListeners is the per-event registration count above which the
// emitter starts logging warnings. Registrations are never rejected.
const DefaultMaxListeners = 10

// Listener receives the payload of an emitted event.
type Listener func(payload any)

// UnregisterFunc removes exactly the registration it was returned for.
// Calling it more than once is a no-op.
type UnregisterFunc func()

type registration struct {
	id uint64
	// Identity of the listener function, used to keep On idempotent for the
	// same (event, listener) pair and to implement Off.
	fn   uintptr
	call Listener
	once bool
}

// Emitter is a publish/subscribe primitive over a closed set of event names.
// Emission iterates over a snapshot of the current registrations, so
// listeners added or removed during an emit only affect subsequent emits.
type Emitter[E comparable] struct {
	mu           sync.Mutex
	listeners    map[E][]*registration
	nextID       uint64
	maxListeners int
	logger       *logrus.Entry
}

func NewEmitter[E comparable](logger *logrus.Entry) *Emitter[E] {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Emitter[E]{
		listeners:    make(map[E][]*registration),
		maxListeners: DefaultMaxListeners,
		logger:       logger,
	}
}

// SetMaxListeners overrides the warning threshold. Zero disables the warning.
func (e *Emitter[E]) SetMaxListeners(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxListeners = n
}

// On registers a listener for the event and returns a token that removes
// this particular registration. Registering the same function twice for the
// same event keeps a single registration.
func (e *Emitter[E]) On(event E, listener Listener) UnregisterFunc {
	return e.register(event, listener, false)
}

// Once registers a listener that is removed right before its first invocation.
func (e *Emitter[E]) Once(event E, listener Listener) UnregisterFunc {
	return e.register(event, listener, true)
}

func (e *Emitter[E]) register(event E, listener Listener, once bool) UnregisterFunc {
	fn := reflect.ValueOf(listener).Pointer()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.listeners[event] {
		if existing.fn == fn && !existing.once {
			id := existing.id
			return func() { e.remove(event, id) }
		}
	}

	e.nextID++
	reg := &registration{id: e.nextID, fn: fn, call: listener, once: once}
	e.listeners[event] = append(e.listeners[event], reg)

	if e.maxListeners > 0 && len(e.listeners[event]) > e.maxListeners {
		e.logger.WithField("event", event).
			Warnf("more than %d listeners registered, possible leak", e.maxListeners)
	}

	id := reg.id
	return func() { e.remove(event, id) }
}

// Off removes the registration of the given listener function, if any.
func (e *Emitter[E]) Off(event E, listener Listener) {
	fn := reflect.ValueOf(listener).Pointer()

	e.mu.Lock()
	defer e.mu.Unlock()

	regs := e.listeners[event]
	for i, reg := range regs {
		if reg.fn == fn {
			e.listeners[event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// RemoveAll drops every listener for the given events, or every listener of
// every event when called without arguments.
func (e *Emitter[E]) RemoveAll(events ...E) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(events) == 0 {
		e.listeners = make(map[E][]*registration)
		return
	}

	for _, event := range events {
		delete(e.listeners, event)
	}
}

// ListenerCount returns the number of registrations for the event.
func (e *Emitter[E]) ListenerCount(event E) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Emit delivers the payload to a snapshot of the event's listeners. A panic
// in one listener is logged and does not prevent delivery to the others.
func (e *Emitter[E]) Emit(event E, payload any) {
	e.mu.Lock()
	snapshot := make([]*registration, len(e.listeners[event]))
	copy(snapshot, e.listeners[event])

	// Once-listeners unregister before invocation.
	for _, reg := range snapshot {
		if reg.once {
			e.removeLocked(event, reg.id)
		}
	}
	e.mu.Unlock()

	for _, reg := range snapshot {
		e.invoke(event, reg, payload)
	}
}

func (e *Emitter[E]) invoke(event E, reg *registration, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("event", event).Errorf("listener panicked: %v", r)
		}
	}()

	reg.call(payload)
}

func (e *Emitter[E]) remove(event E, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(event, id)
}

func (e *Emitter[E]) removeLocked(event E, id uint64) {
	regs := e.listeners[event]
	for i, reg := range regs {
		if reg.id == id {
			e.listeners[event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}
