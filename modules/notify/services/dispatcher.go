package services

import (
	"context"
	"sync"
	"time"

	"github.com/lumacrm/luma/pkg/lifecycle"
	"go.uber.org/zap"
)

// Handler receives one lifecycle event. The context carries the per-delivery
// deadline; handlers doing I/O must honor it.
type Handler func(ctx context.Context, ev lifecycle.Event)

const defaultDeliveryTimeout = 5 * time.Second

// Dispatcher fans lifecycle events out to subscribers in-process. Publish is
// fire-and-forget: each delivery runs on its own goroutine, and a slow or
// panicking subscriber never blocks or fails the operation that emitted the
// event. Close stops accepting events and waits for in-flight deliveries.
type Dispatcher struct {
	log     *zap.Logger
	timeout time.Duration

	mu       sync.RWMutex
	handlers []Handler
	closed   bool
	wg       sync.WaitGroup
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{log: log, timeout: defaultDeliveryTimeout}
}

// Subscribe registers a handler for all subsequent events. Subscriptions are
// expected at wiring time, before traffic.
func (d *Dispatcher) Subscribe(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

func (d *Dispatcher) Publish(ev lifecycle.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("event dropped after dispatcher close",
			zap.String("kind", string(ev.Kind)),
			zap.String("tenant_id", ev.TenantID))
		return
	}
	for _, h := range d.handlers {
		d.wg.Add(1)
		go d.deliver(h, ev)
	}
}

func (d *Dispatcher) deliver(h Handler, ev lifecycle.Event) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event subscriber panicked",
				zap.String("kind", string(ev.Kind)),
				zap.String("tenant_id", ev.TenantID),
				zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	h(ctx, ev)
}

// Close drains in-flight deliveries. Events published after Close are
// dropped with a warning.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
