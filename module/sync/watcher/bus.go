package watcher

import (
	"sync"

	"PSyncProject/module/sync/model"
)

// Bus is the in-process broadcast channel for normalized change events.
// Subscribers key on a collection name ("projected_messages") or on
// collection.operation ("projected_messages.insert"). Delivery is
// non-blocking: a full subscriber buffer drops the event for that
// subscriber only.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]chan model.ChangeEvent
	nextID      int64
	bufferSize  int
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]map[int64]chan model.ChangeEvent),
		bufferSize:  64,
	}
}

// Subscribe registers interest in a key and returns the event stream
// plus a cancel func. Cancel is idempotent.
func (b *Bus) Subscribe(key string) (<-chan model.ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	ch := make(chan model.ChangeEvent, b.bufferSize)
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[int64]chan model.ChangeEvent)
	}
	b.subscribers[key][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if m := b.subscribers[key]; m != nil {
				delete(m, id)
				if len(m) == 0 {
					delete(b.subscribers, key)
				}
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish fans the event out to subscribers of both the collection key
// and the collection.operation key.
func (b *Bus) Publish(ev model.ChangeEvent) {
	b.deliver(ev.Collection, ev)
	b.deliver(ev.Key(), ev)
}

func (b *Bus) deliver(key string, ev model.ChangeEvent) {
	b.mu.RLock()
	targets := make([]chan model.ChangeEvent, 0, len(b.subscribers[key]))
	for _, ch := range b.subscribers[key] {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()
	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: skip rather than stall the feed loop.
		}
	}
}
