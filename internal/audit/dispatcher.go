package audit

import (
	"context"

	"github.com/MrEthical07/goOTP/internal/queue"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher asynchronously forwards audit events to a sink on one worker,
// preserving emission order.
type Dispatcher struct {
	q *queue.Queue[Event]
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	return &Dispatcher{
		q: queue.New(queue.Config{
			BufferSize: cfg.BufferSize,
			Workers:    1,
			DropIfFull: cfg.DropIfFull,
		}, func(event Event) {
			sink.Emit(context.Background(), event)
		}),
	}
}

func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	d.q.Push(ctx, event)
}

func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.q.Close()
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.q.Dropped()
}
