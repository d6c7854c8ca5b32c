package queue

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls queue buffering behavior.
type Config struct {
	BufferSize int
	Workers    int
	DropIfFull bool
}

// Queue runs handle for every pushed item on a fixed set of worker goroutines.
// Items still buffered when Close is called are drained before Close returns.
type Queue[T any] struct {
	cfg       Config
	handle    func(T)
	ch        chan T
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func New[T any](cfg Config, handle func(T)) *Queue[T] {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	q := &Queue[T]{
		cfg:    cfg,
		handle: handle,
		ch:     make(chan T, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.run()
	}

	return q
}

func (q *Queue[T]) run() {
	defer q.wg.Done()

	for {
		select {
		case item := <-q.ch:
			q.handle(item)
		case <-q.done:
			for {
				select {
				case item := <-q.ch:
					q.handle(item)
				default:
					return
				}
			}
		}
	}
}

// Push enqueues item. It reports false when the item was not accepted: the
// queue is closed, the buffer is full in drop mode, or ctx ended first.
func (q *Queue[T]) Push(ctx context.Context, item T) bool {
	if q == nil || q.closed.Load() {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if q.cfg.DropIfFull {
		select {
		case q.ch <- item:
			return true
		case <-q.done:
			return false
		default:
			q.dropped.Add(1)
			return false
		}
	}

	select {
	case q.ch <- item:
		return true
	case <-ctx.Done():
		return false
	case <-q.done:
		return false
	}
}

func (q *Queue[T]) Close() {
	if q == nil {
		return
	}
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.done)
		q.wg.Wait()
	})
}

func (q *Queue[T]) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}
