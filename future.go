package xexchange

import (
	"context"
	"errors"
	"sync"
)

var errRejectedWithoutReason = errors.New("xexchange: future rejected without reason")

// Future is the pending outcome of an asynchronous publish. It settles exactly
// once: resolved with the broker's receiver count, or rejected with an error.
//
// Continuations run on the goroutine that settles the future (the transport's
// writer), or immediately on the registering goroutine if already settled.
// Done and Wait release only after the continuations registered before
// settlement have returned, so a continuation must not Wait on its own future.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	receivers int64
	err       error
	onResolve []func(receivers int64)
	onReject  []func(err error)
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future already resolved with receivers.
func Resolved(receivers int64) *Future {
	f := NewFuture()
	f.Resolve(receivers)
	return f
}

// Rejected returns a future already rejected with err.
func Rejected(err error) *Future {
	f := NewFuture()
	f.Reject(err)
	return f
}

// Resolve settles the future successfully. It reports false if already settled.
func (f *Future) Resolve(receivers int64) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.receivers = receivers
	cbs := f.onResolve
	f.onResolve, f.onReject = nil, nil
	f.mu.Unlock()

	for _, cb := range cbs {
		runContinuation(func() { cb(receivers) })
	}
	close(f.done)
	return true
}

// Reject settles the future with err. It reports false if already settled.
func (f *Future) Reject(err error) bool {
	if err == nil {
		err = errRejectedWithoutReason
	}
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.err = err
	cbs := f.onReject
	f.onResolve, f.onReject = nil, nil
	f.mu.Unlock()

	for _, cb := range cbs {
		runContinuation(func() { cb(err) })
	}
	close(f.done)
	return true
}

// Then registers fn to run when the future resolves.
func (f *Future) Then(fn func(receivers int64)) *Future {
	if fn == nil {
		return f
	}
	f.mu.Lock()
	if !f.settled {
		f.onResolve = append(f.onResolve, fn)
		f.mu.Unlock()
		return f
	}
	n, err := f.receivers, f.err
	f.mu.Unlock()
	if err == nil {
		runContinuation(func() { fn(n) })
	}
	return f
}

// Otherwise registers fn to run when the future is rejected.
func (f *Future) Otherwise(fn func(err error)) *Future {
	if fn == nil {
		return f
	}
	f.mu.Lock()
	if !f.settled {
		f.onReject = append(f.onReject, fn)
		f.mu.Unlock()
		return f
	}
	err := f.err
	f.mu.Unlock()
	if err != nil {
		runContinuation(func() { fn(err) })
	}
	return f
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future settles or ctx ends.
func (f *Future) Wait(ctx context.Context) (int64, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receivers, f.err
}

// runContinuation keeps a panicking callback from killing the transport's writer goroutine.
func runContinuation(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
