package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/model"
)

// InProcessBus fans events out to registered handlers over a bounded
// worker pool, mirroring the teacher's internal/events/processor.go
// worker-pool shape (DefaultProcessorConfig{Workers:5}) so a slow
// notification delivery cannot starve the dispatcher.
type InProcessBus struct {
	mu       sync.RWMutex
	handlers []Handler
	work     chan *model.Event
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewInProcessBus starts workers workers draining the internal queue.
func NewInProcessBus(workers int, logger *zap.Logger) *InProcessBus {
	if workers <= 0 {
		workers = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &InProcessBus{
		work:   make(chan *model.Event, 256),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *InProcessBus) worker() {
	defer b.wg.Done()
	for ev := range b.work {
		b.mu.RLock()
		handlers := append([]Handler(nil), b.handlers...)
		b.mu.RUnlock()
		for _, h := range handlers {
			func() {
				defer func() {
					if r := recover(); r != nil {
						b.logger.Error("event handler panicked", zap.Any("recover", r))
					}
				}()
				h(ev)
			}()
		}
	}
}

// Subscribe registers a handler invoked for every subsequently published event.
func (b *InProcessBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish enqueues ev for async dispatch; never blocks the caller beyond
// the channel's buffer, per spec.md §5's non-blocking fan-out requirement.
func (b *InProcessBus) Publish(_ context.Context, ev *model.Event) {
	select {
	case b.work <- ev:
	default:
		b.logger.Warn("event bus queue full, dropping event", zap.Int("kind", int(ev.Kind)))
	}
}

// Close stops accepting new events and waits for in-flight ones to drain.
func (b *InProcessBus) Close() error {
	close(b.work)
	b.wg.Wait()
	return nil
}

var _ Bus = (*InProcessBus)(nil)
