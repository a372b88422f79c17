package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// MemoryBus delivers events synchronously to every subscriber in the
// publishing goroutine. Handler errors are logged, not returned.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
	closed   bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[int]Handler)}
}

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	if err := ev.validate(); err != nil {
		return err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	handlers := make([]Handler, 0, len(b.handlers))
	for i := 0; i < b.next; i++ {
		if h, ok := b.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			slog.Warn("event handler failed", "kind", ev.Kind, "key", ev.Key, "err", err)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.mu.Unlock()

	if ctx.Done() == nil {
		return nil
	}
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.handlers = make(map[int]Handler)
	b.mu.Unlock()
	return nil
}
