package xexchange

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrObserverPoolShutdownTimeout is returned by ObserverPool.Close when queued
// events are still being dispatched at the deadline.
var ErrObserverPoolShutdownTimeout = errors.New("xexchange: observer pool shutdown timeout")

var _ Observer = (*ObserverPool)(nil)

// ObserverPool is an Observer that hands events to worker goroutines, keeping
// slow observers off the publish path and the async writer goroutine.
// Non-blocking: events are dropped when the buffer is full.
type ObserverPool struct {
	observers []Observer
	eventCh   chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	dropped   atomic.Uint64
	processed atomic.Uint64
}

// NewObserverPool starts workers dispatching to observers.
// workers < 1 selects 4; bufferSize < 1 selects 1000.
func NewObserverPool(workers, bufferSize int, observers ...Observer) *ObserverPool {
	if workers < 1 {
		workers = 4
	}
	if bufferSize < 1 {
		bufferSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())
	op := &ObserverPool{
		eventCh: make(chan Event, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range observers {
		if o != nil {
			op.observers = append(op.observers, o)
		}
	}

	for i := 0; i < workers; i++ {
		op.wg.Add(1)
		go op.worker()
	}
	return op
}

// OnEvent queues e for dispatch and returns immediately.
func (op *ObserverPool) OnEvent(e Event) {
	if len(op.observers) == 0 || op.closed.Load() {
		return
	}
	select {
	case op.eventCh <- e:
	default:
		op.dropped.Add(1)
	}
}

func (op *ObserverPool) worker() {
	defer op.wg.Done()
	for {
		select {
		case <-op.ctx.Done():
			// drain what was queued before Close
			for {
				select {
				case e := <-op.eventCh:
					op.dispatch(e)
				default:
					return
				}
			}
		case e := <-op.eventCh:
			op.dispatch(e)
		}
	}
}

func (op *ObserverPool) dispatch(e Event) {
	for _, obs := range op.observers {
		runContinuation(func() { obs.OnEvent(e) })
	}
	op.processed.Add(1)
}

// Close stops accepting events and waits up to timeout for queued ones.
func (op *ObserverPool) Close(timeout time.Duration) error {
	if op.closed.Swap(true) {
		return nil
	}
	op.cancel()

	done := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrObserverPoolShutdownTimeout
	}
}

// PoolStats is observer pool telemetry.
type PoolStats struct {
	Dropped   uint64
	Processed uint64
}

func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:   op.dropped.Load(),
		Processed: op.processed.Load(),
	}
}
