package headless

import (
	"fmt"
	"sync"
	"time"

	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// Queue is a headless command queue. Fences are monotonic per queue; in
// auto-complete mode (the default) a signalled value completes
// immediately, as if the GPU were infinitely fast. Tests can switch to
// manual completion to hold work in flight.
type Queue struct {
	backend *Backend
	role    metadata.QueueRole

	mu           sync.Mutex
	cond         *sync.Cond
	current      metadata.FenceValue
	completed    metadata.FenceValue
	autoComplete bool

	// Lists submitted since the last Signal; they retire at the next
	// signalled value.
	pending []renderer.CommandList
	// Submitted lists keyed by the fence value they retire at.
	inflight map[metadata.FenceValue][]renderer.CommandList

	submitCount int
}

func newQueue(backend *Backend, role metadata.QueueRole) *Queue {
	q := &Queue{
		backend:      backend,
		role:         role,
		autoComplete: true,
		inflight:     make(map[metadata.FenceValue][]renderer.CommandList),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Signal() metadata.FenceValue {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current++
	value := q.current
	if len(q.pending) > 0 {
		q.inflight[value] = q.pending
		q.pending = nil
	}
	if q.autoComplete {
		q.completeLocked(value)
	}
	return value
}

func (q *Queue) SignalValue(value metadata.FenceValue) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if value <= q.current {
		return fmt.Errorf("fence value %d is not monotonic (current %d) on %s queue",
			value, q.current, q.role)
	}
	q.current = value
	if len(q.pending) > 0 {
		q.inflight[value] = q.pending
		q.pending = nil
	}
	if q.autoComplete {
		q.completeLocked(value)
	}
	return nil
}

func (q *Queue) Wait(value metadata.FenceValue) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.completed < value {
		q.cond.Wait()
	}
	return nil
}

func (q *Queue) WaitTimeout(value metadata.FenceValue, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.completed < value {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("timed out waiting for fence %d on %s queue (completed %d)",
				value, q.role, q.completed)
		}
		// Re-checked on every wakeup; Complete broadcasts.
		q.mu.Unlock()
		time.Sleep(min(remaining, time.Millisecond))
		q.mu.Lock()
	}
	return nil
}

func (q *Queue) GetCompletedValue() metadata.FenceValue {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completed
}

func (q *Queue) GetCurrentValue() metadata.FenceValue {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

func (q *Queue) Submit(list renderer.CommandList) error {
	return q.SubmitAll([]renderer.CommandList{list})
}

func (q *Queue) SubmitAll(lists []renderer.CommandList) error {
	if err := q.backend.takeSubmitFailure(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, lists...)
	q.submitCount += len(lists)
	return nil
}

func (q *Queue) GetQueueRole() metadata.QueueRole {
	return q.role
}

// SetAutoComplete toggles immediate fence completion. With it off, tests
// drive completion explicitly through Complete.
func (q *Queue) SetAutoComplete(auto bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.autoComplete = auto
	if auto {
		q.completeLocked(q.current)
	}
}

// Complete marks all fence values up to value as completed.
func (q *Queue) Complete(value metadata.FenceValue) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completeLocked(value)
}

func (q *Queue) completeLocked(value metadata.FenceValue) {
	if value <= q.completed {
		return
	}
	q.completed = value
	for fence, lists := range q.inflight {
		if fence <= value {
			for _, l := range lists {
				if cl, ok := l.(*CommandListImpl); ok && cl.recorder != nil {
					q.backend.recycle(cl.recorder)
				}
			}
			delete(q.inflight, fence)
		}
	}
	q.cond.Broadcast()
}

// SubmitCount reports how many command lists were submitted, for tests.
func (q *Queue) SubmitCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.submitCount
}
