package core

import (
	"context"
	"fmt"
	"sync"
)

// Dispatcher runs a task on some worker. The job system implements this;
// a nil dispatcher falls back to spawning a goroutine per task.
type Dispatcher interface {
	Dispatch(task func())
}

// Nursery is a structured-concurrency task group. Every task started with
// Go is owned by the nursery: Wait blocks until all of them have finished,
// the first error cancels the rest, and nothing outlives the nursery. The
// scheduler opens one nursery per phase so no work can leak across a phase
// boundary.
type Nursery struct {
	ctx        context.Context
	cancel     context.CancelFunc
	dispatcher Dispatcher

	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

func NewNursery(parent context.Context, dispatcher Dispatcher) *Nursery {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Nursery{
		ctx:        ctx,
		cancel:     cancel,
		dispatcher: dispatcher,
	}
}

// Context returns the nursery's context. Child tasks are expected to
// observe cancellation through it at their next await point.
func (n *Nursery) Context() context.Context {
	return n.ctx
}

// Go starts a child task. If the nursery was already cancelled the task is
// not started.
func (n *Nursery) Go(fn func(ctx context.Context) error) {
	select {
	case <-n.ctx.Done():
		return
	default:
	}

	n.wg.Add(1)
	run := func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.fail(fmt.Errorf("nursery task panic: %v", r))
			}
		}()
		if err := fn(n.ctx); err != nil {
			n.fail(err)
		}
	}

	if n.dispatcher != nil {
		n.dispatcher.Dispatch(run)
	} else {
		go run()
	}
}

func (n *Nursery) fail(err error) {
	n.errOnce.Do(func() {
		n.err = err
		n.cancel()
	})
}

// Cancel signals all child tasks. Cooperative: each task observes the
// context at its next await.
func (n *Nursery) Cancel() {
	n.cancel()
}

// Wait drains the nursery and returns the first error, if any. The nursery
// must not be reused afterwards.
func (n *Nursery) Wait() error {
	n.wg.Wait()
	n.cancel()
	return n.err
}
