// Package bus provides the processing event bus: an in-process
// implementation that triggers the worker on an async task, and a Kafka
// implementation for deployments that want a durable queue. Both offer
// at-least-once semantics at best; subscribers must tolerate re-delivery.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Handler consumes one processing event. Errors are the handler's to
// record; the bus is fire-and-forget.
type Handler func(ctx context.Context, evt simplemedia.ProcessingEvent) error

// InProcess triggers subscribers on a per-event goroutine within the same
// process. There is no cross-instance deduplication and no visibility
// timeout; a crashed process loses in-flight events and relies on the
// stalled sweep to re-offer the work.
type InProcess struct {
	mu       sync.RWMutex
	handlers []Handler
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewInProcess creates an in-process bus.
func NewInProcess(logger *slog.Logger) *InProcess {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcess{logger: logger}
}

// Subscribe registers a handler for every published event.
func (b *InProcess) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish fires the event to every subscriber on its own goroutine. The
// event outlives the publisher's request context.
func (b *InProcess) Publish(ctx context.Context, evt simplemedia.ProcessingEvent) error {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, h := range handlers {
		h := h
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := h(detached, evt); err != nil {
				b.logger.Warn("event handler failed", "media_id", evt.MediaID, "error", err)
			}
		}()
	}
	return nil
}

// Wait blocks until all in-flight events are handled, for shutdown and
// tests.
func (b *InProcess) Wait() {
	b.wg.Wait()
}
