package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModule struct {
	name      string
	priority  int32
	phases    PhaseMask
	onPhase   func(phase PhaseID, frame *FrameContext) error
	shutdowns int
}

func (m *stubModule) Name() string      { return m.name }
func (m *stubModule) Priority() int32   { return m.priority }
func (m *stubModule) Phases() PhaseMask { return m.phases }

func (m *stubModule) OnPhase(_ context.Context, phase PhaseID, frame *FrameContext) error {
	if m.onPhase != nil {
		return m.onPhase(phase, frame)
	}
	return nil
}

func (m *stubModule) OnShutdown() error {
	m.shutdowns++
	return nil
}

func newStub(name string, priority int32, phases PhaseMask) *stubModule {
	return &stubModule{name: name, priority: priority, phases: phases}
}

func TestRegisterRejectsDuplicateInstance(t *testing.T) {
	mm := NewModuleManager()
	module := newStub("physics", 0, AllPhases)

	require.NoError(t, mm.Register(module))
	assert.Error(t, mm.Register(module))
	assert.Equal(t, 1, mm.Count())
}

func TestSubscribeReplaysInAttachOrder(t *testing.T) {
	mm := NewModuleManager()
	// Priorities deliberately out of order: replay follows attachment,
	// not priority.
	a := newStub("a", 50, AllPhases)
	b := newStub("b", -10, AllPhases)
	require.NoError(t, mm.Register(a))
	require.NoError(t, mm.Register(b))

	var replayed []string
	mm.Subscribe(func(event ModuleEvent) {
		assert.Equal(t, ModuleAttached, event.Kind)
		replayed = append(replayed, event.Module.Name())
	}, true)
	assert.Equal(t, []string{"a", "b"}, replayed)
}

func TestSubscriptionDeliversLifecycleEvents(t *testing.T) {
	mm := NewModuleManager()

	var events []ModuleEventKind
	sub := mm.Subscribe(func(event ModuleEvent) {
		events = append(events, event.Kind)
	}, false)

	module := newStub("audio", 0, AllPhases)
	require.NoError(t, mm.Register(module))
	cause := errors.New("mixer stalled")
	mm.MarkFailed(module, cause)
	require.NoError(t, mm.Unregister(module))
	assert.Equal(t, []ModuleEventKind{ModuleAttached, ModuleFailed, ModuleDetached}, events)
	assert.Equal(t, 1, module.shutdowns)

	// After Cancel nothing more arrives.
	sub.Cancel()
	require.NoError(t, mm.Register(newStub("late", 0, AllPhases)))
	assert.Len(t, events, 3)
}

func TestModulesForPhaseOrdersByPriorityThenAttach(t *testing.T) {
	mm := NewModuleManager()
	input := MaskOf(PhaseInput)

	first := newStub("first", 10, input)
	second := newStub("second", -5, input)
	third := newStub("third", 10, input)
	other := newStub("other", 0, MaskOf(PhaseRender))
	require.NoError(t, mm.Register(first))
	require.NoError(t, mm.Register(second))
	require.NoError(t, mm.Register(third))
	require.NoError(t, mm.Register(other))

	names := func(modules []Module) []string {
		out := make([]string, len(modules))
		for i, m := range modules {
			out[i] = m.Name()
		}
		return out
	}

	assert.Equal(t, []string{"second", "first", "third"}, names(mm.ModulesForPhase(PhaseInput)))
	assert.Equal(t, []string{"other"}, names(mm.ModulesForPhase(PhaseRender)))
	assert.Empty(t, mm.ModulesForPhase(PhaseSubmit))

	// Failed modules drop out of dispatch but stay registered.
	mm.MarkFailed(first, errors.New("boom"))
	assert.Equal(t, []string{"second", "third"}, names(mm.ModulesForPhase(PhaseInput)))
	assert.Equal(t, 4, mm.Count())
}

func TestShutdownUnregistersInReverseAttachOrder(t *testing.T) {
	mm := NewModuleManager()
	a := newStub("a", 0, AllPhases)
	b := newStub("b", 0, AllPhases)
	require.NoError(t, mm.Register(a))
	require.NoError(t, mm.Register(b))

	var detached []string
	mm.Subscribe(func(event ModuleEvent) {
		if event.Kind == ModuleDetached {
			detached = append(detached, event.Module.Name())
		}
	}, false)

	require.NoError(t, mm.Shutdown())
	assert.Equal(t, []string{"b", "a"}, detached)
	assert.Equal(t, 0, mm.Count())
	assert.Equal(t, 1, a.shutdowns)
	assert.Equal(t, 1, b.shutdowns)
}

func TestPhaseMask(t *testing.T) {
	mask := MaskOf(PhaseInput, PhaseRender)
	assert.True(t, mask.Contains(PhaseInput))
	assert.True(t, mask.Contains(PhaseRender))
	assert.False(t, mask.Contains(PhaseSubmit))
	for p := PhaseFrameStart; p < PhaseCount; p++ {
		assert.True(t, AllPhases.Contains(p))
	}
}
