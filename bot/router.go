package bot

import (
	"fmt"
	"sync"
)

type Handler func(Event)

// HandlerID identifies one registration, for Off.
type HandlerID uint64

type registration struct {
	id HandlerID
	fn Handler
}

// registry maps event types to handlers in registration order.
type registry struct {
	mu     sync.RWMutex
	nextID HandlerID
	byType map[EventType][]registration
	types  map[HandlerID]EventType
}

func newRegistry() *registry {
	return &registry{
		byType: make(map[EventType][]registration),
		types:  make(map[HandlerID]EventType),
	}
}

func (r *registry) add(t EventType, fn Handler) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.byType[t] = append(r.byType[t], registration{id: id, fn: fn})
	r.types[id] = t
	return id
}

func (r *registry) remove(id HandlerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.types[id]
	if !ok {
		return false
	}
	delete(r.types, id)

	regs := r.byType[t]
	out := make([]registration, 0, len(regs)-1)
	for _, reg := range regs {
		if reg.id != id {
			out = append(out, reg)
		}
	}
	if len(out) == 0 {
		delete(r.byType, t)
	} else {
		r.byType[t] = out
	}
	return true
}

// handlers returns a snapshot so dispatch never holds the lock while user
// code runs.
func (r *registry) handlers(t EventType) []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	regs := r.byType[t]
	out := make([]registration, len(regs))
	copy(out, regs)
	return out
}

// dispatch runs every handler for evt in order. A panicking handler is
// turned into an error and the remaining handlers still run.
func (r *registry) dispatch(evt Event, report func(error)) int {
	regs := r.handlers(evt.Type)
	for _, reg := range regs {
		callHandler(reg, evt, report)
	}
	return len(regs)
}

func callHandler(reg registration, evt Event, report func(error)) {
	defer func() {
		if p := recover(); p != nil {
			report(fmt.Errorf("handler %d for %s panicked: %v", reg.id, evt.Type, p))
		}
	}()
	reg.fn(evt)
}
