package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Config controls how the bus delivers events to handlers.
type Config struct {
	// Async delivers on a background goroutine through a bounded queue.
	// When false, Publish runs handlers inline on the caller's goroutine.
	Async      bool
	BufferSize int
	DropIfFull bool
}

type envelope struct {
	ctx context.Context
	ev  Event
}

// Bus routes events to the handlers subscribed to their name.
//
// Handlers must be registered before the first Publish call. The bus is safe
// for concurrent Publish calls afterwards.
type Bus struct {
	cfg      Config
	logger   *slog.Logger
	handlers map[string][]Handler
	all      []Handler

	ch        chan envelope
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewBus creates a bus. A nil logger falls back to slog.Default.
func NewBus(cfg Config, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string][]Handler),
	}
	if cfg.Async {
		if cfg.BufferSize <= 0 {
			cfg.BufferSize = 1
			b.cfg.BufferSize = 1
		}
		b.ch = make(chan envelope, cfg.BufferSize)
		b.done = make(chan struct{})
		b.wg.Add(1)
		go b.run()
	}
	return b
}

// Subscribe registers h for events named name.
func (b *Bus) Subscribe(name string, h Handler) {
	if b == nil || h == nil {
		return
	}
	b.handlers[name] = append(b.handlers[name], h)
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) {
	if b == nil || h == nil {
		return
	}
	b.all = append(b.all, h)
}

// Publish delivers evs in order. Call it only after the producing
// transaction has committed.
func (b *Bus) Publish(ctx context.Context, evs ...Event) {
	if b == nil || b.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		if !b.cfg.Async {
			b.deliver(ctx, ev)
			continue
		}
		b.enqueue(ctx, envelope{ctx: context.WithoutCancel(ctx), ev: ev})
	}
}

func (b *Bus) enqueue(ctx context.Context, env envelope) {
	if b.cfg.DropIfFull {
		select {
		case b.ch <- env:
		case <-b.done:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped", "event", env.ev.EventName())
		}
		return
	}

	select {
	case b.ch <- env:
	case <-ctx.Done():
		b.dropped.Add(1)
	case <-b.done:
	}
}

func (b *Bus) run() {
	defer b.wg.Done()

	for {
		select {
		case env := <-b.ch:
			b.deliver(env.ctx, env.ev)
		case <-b.done:
			for {
				select {
				case env := <-b.ch:
					b.deliver(env.ctx, env.ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ctx context.Context, ev Event) {
	name := ev.EventName()
	for _, h := range b.handlers[name] {
		b.invoke(ctx, h, ev)
	}
	for _, h := range b.all {
		b.invoke(ctx, h, ev)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("event handler panicked", "event", ev.EventName(), "panic", p)
		}
	}()
	if err := h.Handle(ctx, ev); err != nil {
		b.logger.Warn("event handler failed", "event", ev.EventName(), "error", err)
	}
}

// Close drains queued events and stops the background worker.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		if b.done != nil {
			close(b.done)
			b.wg.Wait()
		}
	})
}

// Dropped reports how many events were discarded under backpressure.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
