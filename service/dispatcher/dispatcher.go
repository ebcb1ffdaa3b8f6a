package dispatcher

import (
	"context"
	"sync"

	"PSyncProject/logger"
	"PSyncProject/module/sync/model"

	"go.uber.org/zap"
)

// Handler processes one domain event. A returned error is logged, not
// propagated: the dispatch pipeline never aborts on one bad handler.
type Handler func(ctx context.Context, ev model.MessageEvent) error

// Dispatcher is an explicit dispatch table: event type -> ordered list
// of handlers. The application constructs and owns it; there is no
// framework bus behind it.
type Dispatcher struct {
	mu    sync.RWMutex
	table map[string][]Handler
}

func New() *Dispatcher {
	return &Dispatcher{table: make(map[string][]Handler)}
}

// Register appends a handler for the event type, preserving order.
func (d *Dispatcher) Register(eventType string, h Handler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	d.table[eventType] = append(d.table[eventType], h)
	d.mu.Unlock()
}

// Dispatch runs the registered handlers for the event in registration
// order. Each handler is isolated: a panic or error is logged and the
// remaining handlers still run. Events themselves are dispatched
// concurrently by the callers (one Dispatch per event).
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.MessageEvent) {
	d.mu.RLock()
	handlers := d.table[ev.EventType]
	d.mu.RUnlock()
	if len(handlers) == 0 {
		logger.Warn("no handlers for event type",
			zap.String("event_type", ev.EventType),
			zap.String("message_id", ev.MessageID))
		return
	}
	for _, h := range handlers {
		runIsolated(ctx, h, ev)
	}
}

func runIsolated(ctx context.Context, h Handler, ev model.MessageEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("event handler panic recovered: event_type=%s message_id=%s panic=%v",
				ev.EventType, ev.MessageID, r)
		}
	}()
	if err := h(ctx, ev); err != nil {
		logger.Error("event handler failed",
			zap.String("event_type", ev.EventType),
			zap.String("message_id", ev.MessageID),
			zap.Error(err))
	}
}
