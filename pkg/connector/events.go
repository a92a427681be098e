package connector

import (
	"sort"
	"sync"
)

// Handler receives connector events. Handlers run on the goroutine that produced the
// event and must not block.
type Handler func(Event)

// eventBus fans events out to subscribers in subscription order
type eventBus struct {
	mu       sync.RWMutex
	nextId   uint64
	handlers map[uint64]Handler
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[uint64]Handler)}
}

func (b *eventBus) subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextId
	b.nextId++
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

func (b *eventBus) publish(e Event) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

func (b *eventBus) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
