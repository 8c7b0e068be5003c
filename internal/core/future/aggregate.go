package future

import (
	"context"
	"errors"
	"sync"
)

// ErrAggregateCompleted is returned by Done/Fail after completion and is the
// panic value of Add after completion.
var ErrAggregateCompleted = errors.New("aggregate already completed")

// Aggregate completes once a countdown of expected signals reaches zero.
// Completion happens exactly once regardless of signal order or source.
type Aggregate struct {
	mu        sync.Mutex
	remaining int
	complete  bool
	err       error
	done      chan struct{}
	callbacks []func(error)
}

// NewAggregate expects n signals. n == 0 completes immediately.
func NewAggregate(n int) *Aggregate {
	if n < 0 {
		panic("future: negative aggregate count")
	}
	a := &Aggregate{
		remaining: n,
		done:      make(chan struct{}),
	}
	if n == 0 {
		a.complete = true
		close(a.done)
	}
	return a
}

// Add registers n more expected signals. Calling it after completion is a
// programming error and panics with ErrAggregateCompleted.
func (a *Aggregate) Add(n int) {
	if n < 0 {
		panic("future: negative aggregate increment")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.complete {
		panic(ErrAggregateCompleted)
	}
	a.remaining += n
}

// Done counts one successful signal. Signals after completion are ignored
// and reported with ErrAggregateCompleted.
func (a *Aggregate) Done() error {
	return a.signal(nil)
}

// Fail counts one signal and records err as the aggregate's failure. The
// first failure wins; the countdown still proceeds so completion is never lost.
func (a *Aggregate) Fail(err error) error {
	if err == nil {
		err = ErrNilRejection
	}
	return a.signal(err)
}

func (a *Aggregate) signal(err error) error {
	a.mu.Lock()
	if a.complete {
		a.mu.Unlock()
		return ErrAggregateCompleted
	}
	if err != nil && a.err == nil {
		a.err = err
	}
	a.remaining--
	if a.remaining > 0 {
		a.mu.Unlock()
		return nil
	}
	a.complete = true
	close(a.done)
	cbs := a.callbacks
	a.callbacks = nil
	res := a.err
	a.mu.Unlock()

	for _, cb := range cbs {
		cb(res)
	}
	return nil
}

// Completed is closed when the countdown reaches zero.
func (a *Aggregate) Completed() <-chan struct{} { return a.done }

func (a *Aggregate) IsComplete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.complete
}

func (a *Aggregate) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining
}

// Err returns the first recorded failure.
func (a *Aggregate) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// OnComplete runs fn once with the aggregate's failure (nil on success).
// fn runs immediately when the aggregate is already complete.
func (a *Aggregate) OnComplete(fn func(error)) {
	a.mu.Lock()
	if !a.complete {
		a.callbacks = append(a.callbacks, fn)
		a.mu.Unlock()
		return
	}
	err := a.err
	a.mu.Unlock()
	fn(err)
}

// Wait blocks until completion or until ctx ends.
func (a *Aggregate) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
