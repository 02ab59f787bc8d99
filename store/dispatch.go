package store

import (
	"context"
	"sync"
)

// Dispatcher runs queued callbacks one at a time, in order, on its own
// goroutine. Enqueue never blocks.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) Enqueue(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
	d.signal()
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

// Flush waits until every callback queued before the call has run. It must
// not be called from a callback.
func (d *Dispatcher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.queue = append(d.queue, func() { close(done) })
	d.mu.Unlock()
	d.signal()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops future callbacks; already queued ones still run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
}

func (d *Dispatcher) Done() <-chan struct{} {
	return d.stopped
}
