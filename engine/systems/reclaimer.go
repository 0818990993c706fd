package systems

import (
	"fmt"
	"sync"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

type DeferredReclaimerConfig struct {
	FramesInFlight uint32
}

// DeferredReclaimer holds per-slot queues of deferred release functions.
// Work scheduled for a slot runs exactly once per cycle through that
// slot, at frame start, before any new allocation touches the slot.
type DeferredReclaimer struct {
	mu     sync.Mutex
	queues [][]func()
}

func NewDeferredReclaimer(config *DeferredReclaimerConfig) (*DeferredReclaimer, error) {
	if config.FramesInFlight == 0 {
		err := fmt.Errorf("func NewDeferredReclaimer - config.FramesInFlight must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	return &DeferredReclaimer{
		queues: make([][]func(), config.FramesInFlight),
	}, nil
}

// Schedule queues fn to run when slot comes around again, i.e. when all
// GPU work referencing the current cycle of that slot has retired.
func (dr *DeferredReclaimer) Schedule(slot metadata.FrameSlot, fn func()) {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	if int(slot) >= len(dr.queues) {
		core.LogError("deferred reclaim scheduled for invalid slot %d", slot)
		return
	}
	dr.queues[slot] = append(dr.queues[slot], fn)
}

// OnFrameStart drains the queue of the given slot. Must run before any
// new allocation for the slot.
func (dr *DeferredReclaimer) OnFrameStart(slot metadata.FrameSlot) {
	dr.mu.Lock()
	pending := dr.queues[slot]
	dr.queues[slot] = nil
	dr.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// PendingCount reports queued work for one slot, for tests.
func (dr *DeferredReclaimer) PendingCount(slot metadata.FrameSlot) int {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	return len(dr.queues[slot])
}

// Shutdown drains all per-slot queues in order.
func (dr *DeferredReclaimer) Shutdown() error {
	dr.mu.Lock()
	queues := dr.queues
	dr.queues = make([][]func(), len(queues))
	dr.mu.Unlock()

	for _, q := range queues {
		for _, fn := range q {
			fn()
		}
	}
	return nil
}
