package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards redirect events when the queue is full. Account
	// events (logins and logouts) always wait for space.
	DropIfFull bool
}

// Dispatcher forwards events to a sink on its own goroutine. A nil
// *Dispatcher is a valid disabled dispatcher.
type Dispatcher struct {
	cfg   Config
	sink  Sink
	queue chan Event

	stop     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	finished chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		queue:    make(chan Event, max(cfg.BufferSize, 1)),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)
	ctx := context.Background()
	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.deliver(ctx, event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	d.sink.Emit(ctx, event)
	d.delivered.Add(1)
}

// droppable reports whether an event may be discarded under load. Redirects
// are high volume and also visible in metrics; account events are not.
func droppable(eventType string) bool {
	return eventType == TypeRedirect
}

// Emit stamps event if it has no timestamp and queues it. An account event
// waits for queue space until ctx ends, which counts as a drop. After Close,
// Emit does nothing.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.stopped.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if d.cfg.DropIfFull && droppable(event.EventType) {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events and returns once everything already queued
// has reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
	})
	<-d.finished
}

// Dropped returns the number of events discarded under load.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns the number of events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
