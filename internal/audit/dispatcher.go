package audit

import (
	"context"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher decouples event producers from the sink: Emit hands the
// event to a queue and returns; a single worker goroutine delivers. A
// nil Dispatcher is valid and discards everything, so disabled audit
// costs one nil check per emit.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	dropIfFull bool

	quit     chan struct{} // closed by Close to stop the worker
	done     chan struct{} // closed by the worker on exit
	stopping atomic.Bool
	dropped  atomic.Uint64
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, size),
		dropIfFull: cfg.DropIfFull,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go d.work()

	return d
}

func (d *Dispatcher) work() {
	defer close(d.done)

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.flush()
			return
		}
	}
}

// flush delivers everything still buffered at shutdown.
func (d *Dispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues an event for delivery. With DropIfFull set, a full queue
// sheds the event immediately; otherwise Emit waits until the queue
// accepts it, the context ends, or the dispatcher shuts down.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.stopping.Load() {
		return
	}

	if d.dropIfFull {
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
	case <-d.quit:
	}
}

// Close stops accepting events, delivers what is buffered, and waits
// for the worker to exit. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	if !d.stopping.Swap(true) {
		close(d.quit)
	}
	<-d.done
}

// Dropped reports events lost to backpressure since startup.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
