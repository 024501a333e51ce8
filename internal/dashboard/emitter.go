package dashboard

import (
	"fmt"
	"sync"
)

type emitter struct {
	mu        sync.Mutex
	supported map[EventType]bool
	handlers  map[EventType]map[int]Handler
	nextID    int
}

func newEmitter(supported ...EventType) *emitter {
	e := &emitter{
		supported: make(map[EventType]bool, len(supported)),
		handlers:  make(map[EventType]map[int]Handler),
	}
	for _, eventType := range supported {
		e.supported[eventType] = true
	}
	return e
}

func (e *emitter) add(eventType EventType, handler Handler) (Unregister, error) {
	if !e.supported[eventType] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}
	if handler == nil {
		return nil, fmt.Errorf("event handler cannot be nil")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	if e.handlers[eventType] == nil {
		e.handlers[eventType] = make(map[int]Handler)
	}
	e.handlers[eventType][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.handlers[eventType], id)
		})
	}, nil
}

// emit calls the handlers outside the lock so they may unregister themselves.
func (e *emitter) emit(event Event) {
	e.mu.Lock()
	handlers := make([]Handler, 0, len(e.handlers[event.Type]))
	for _, handler := range e.handlers[event.Type] {
		handlers = append(handlers, handler)
	}
	e.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (e *emitter) count(eventType EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[eventType])
}
