package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oxyengine/oxygen/engine/core"
)

// Module is a unit of frame work. The scheduler invokes OnPhase for
// every phase in the module's mask, at most once per phase per frame
// (the fixed simulation phase may tick more than once).
type Module interface {
	Name() string
	// Priority orders modules within a phase, ascending; ties break by
	// attach order.
	Priority() int32
	Phases() PhaseMask
	OnPhase(ctx context.Context, phase PhaseID, frame *FrameContext) error
	// OnShutdown runs exactly once when the module is unregistered.
	OnShutdown() error
}

type ModuleEventKind uint8

const (
	ModuleAttached ModuleEventKind = iota
	ModuleDetached
	ModuleFailed
)

func (k ModuleEventKind) String() string {
	switch k {
	case ModuleAttached:
		return "attached"
	case ModuleDetached:
		return "detached"
	case ModuleFailed:
		return "failed"
	}
	return "unknown"
}

type ModuleEvent struct {
	Kind   ModuleEventKind
	Module Module
	// Err carries the failure for ModuleFailed events.
	Err error
}

type registeredModule struct {
	module      Module
	attachOrder uint64
	failed      bool
}

// ModuleSubscription receives module lifecycle events until cancelled.
type ModuleSubscription struct {
	manager   *ModuleManager
	callback  func(ModuleEvent)
	cancelled bool
}

// Cancel stops delivery synchronously: once it returns, the callback
// will not run again.
func (s *ModuleSubscription) Cancel() {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()
	s.cancelled = true
	for i, sub := range s.manager.subscribers {
		if sub == s {
			s.manager.subscribers = append(s.manager.subscribers[:i], s.manager.subscribers[i+1:]...)
			return
		}
	}
}

/**
 * ModuleManager owns the registered module set and its lifecycle
 * events. Registration order is remembered to break priority ties, and
 * subscribers can replay the already-attached modules on subscribe.
 */
type ModuleManager struct {
	mu          sync.Mutex
	modules     []*registeredModule
	subscribers []*ModuleSubscription
	nextOrder   uint64
}

func NewModuleManager() *ModuleManager {
	return &ModuleManager{}
}

// Register attaches a module and notifies subscribers. Registering the
// same instance twice fails.
func (mm *ModuleManager) Register(module Module) error {
	mm.mu.Lock()
	for _, reg := range mm.modules {
		if reg.module == module {
			mm.mu.Unlock()
			err := fmt.Errorf("func ModuleManager.Register - module %q is already registered", module.Name())
			core.LogError(err.Error())
			return err
		}
	}
	mm.modules = append(mm.modules, &registeredModule{
		module:      module,
		attachOrder: mm.nextOrder,
	})
	mm.nextOrder++
	mm.mu.Unlock()

	core.LogInfo("module %q attached", module.Name())
	mm.publish(ModuleEvent{Kind: ModuleAttached, Module: module})
	return nil
}

// Unregister detaches the module, runs OnShutdown exactly once and
// notifies subscribers.
func (mm *ModuleManager) Unregister(module Module) error {
	mm.mu.Lock()
	found := false
	for i, reg := range mm.modules {
		if reg.module == module {
			mm.modules = append(mm.modules[:i], mm.modules[i+1:]...)
			found = true
			break
		}
	}
	mm.mu.Unlock()
	if !found {
		return fmt.Errorf("func ModuleManager.Unregister - module %q is not registered", module.Name())
	}

	if err := module.OnShutdown(); err != nil {
		core.LogError("module %q shutdown failed: %s", module.Name(), err.Error())
	}
	core.LogInfo("module %q detached", module.Name())
	mm.publish(ModuleEvent{Kind: ModuleDetached, Module: module})
	return nil
}

// Subscribe registers a lifecycle callback. With replayExisting, the
// callback is invoked synchronously for every attached module in attach
// order before Subscribe returns.
func (mm *ModuleManager) Subscribe(callback func(ModuleEvent), replayExisting bool) *ModuleSubscription {
	sub := &ModuleSubscription{manager: mm, callback: callback}

	mm.mu.Lock()
	var replay []Module
	if replayExisting {
		ordered := make([]*registeredModule, len(mm.modules))
		copy(ordered, mm.modules)
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].attachOrder < ordered[j].attachOrder
		})
		for _, reg := range ordered {
			replay = append(replay, reg.module)
		}
	}
	mm.subscribers = append(mm.subscribers, sub)
	mm.mu.Unlock()

	for _, module := range replay {
		callback(ModuleEvent{Kind: ModuleAttached, Module: module})
	}
	return sub
}

func (mm *ModuleManager) publish(event ModuleEvent) {
	mm.mu.Lock()
	subs := make([]*ModuleSubscription, 0, len(mm.subscribers))
	subs = append(subs, mm.subscribers...)
	mm.mu.Unlock()

	for _, sub := range subs {
		// Re-check under the lock so Cancel stays synchronous.
		sub.manager.mu.Lock()
		cancelled := sub.cancelled
		sub.manager.mu.Unlock()
		if !cancelled {
			sub.callback(event)
		}
	}
}

// MarkFailed flags the module and emits ModuleFailed. Failed modules
// are skipped for the rest of the session.
func (mm *ModuleManager) MarkFailed(module Module, cause error) {
	mm.mu.Lock()
	for _, reg := range mm.modules {
		if reg.module == module {
			reg.failed = true
			break
		}
	}
	mm.mu.Unlock()

	core.LogWarn("module %q failed: %v", module.Name(), cause)
	mm.publish(ModuleEvent{Kind: ModuleFailed, Module: module, Err: cause})
}

// ModulesForPhase returns the non-failed modules supporting the phase,
// ordered by ascending priority then attach order.
func (mm *ModuleManager) ModulesForPhase(phase PhaseID) []Module {
	mm.mu.Lock()
	ordered := make([]*registeredModule, 0, len(mm.modules))
	for _, reg := range mm.modules {
		if !reg.failed && reg.module.Phases().Contains(phase) {
			ordered = append(ordered, reg)
		}
	}
	mm.mu.Unlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := ordered[i].module.Priority(), ordered[j].module.Priority()
		if pi != pj {
			return pi < pj
		}
		return ordered[i].attachOrder < ordered[j].attachOrder
	})
	modules := make([]Module, len(ordered))
	for i, reg := range ordered {
		modules[i] = reg.module
	}
	return modules
}

func (mm *ModuleManager) Count() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return len(mm.modules)
}

// Shutdown unregisters every module in reverse attach order.
func (mm *ModuleManager) Shutdown() error {
	mm.mu.Lock()
	ordered := make([]*registeredModule, len(mm.modules))
	copy(ordered, mm.modules)
	mm.mu.Unlock()
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].attachOrder > ordered[j].attachOrder
	})

	for _, reg := range ordered {
		if err := mm.Unregister(reg.module); err != nil {
			return err
		}
	}
	return nil
}
