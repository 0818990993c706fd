package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
	"github.com/oxyengine/oxygen/engine/scene"
	"github.com/oxyengine/oxygen/engine/systems"
)

type SchedulerConfig struct {
	FramesInFlight   uint32
	FixedStepSeconds float64
	// Upper bound on fixed ticks per frame to avoid spiral-of-death
	// after a long stall.
	MaxFixedTicksPerFrame int
	ViewportWidth         uint32
	ViewportHeight        uint32
}

/**
 * Scheduler drives the fixed phase sequence each frame: it seeds the
 * frame context, retires completed GPU work at FrameStart, dispatches
 * modules per phase in (priority, attach order) through a per-phase
 * nursery, and runs the engine-side phase work (transform propagation,
 * scene preparation, submission bookkeeping, slot advance).
 */
type Scheduler struct {
	Config *SchedulerConfig

	graphics    renderer.Graphics
	modules     *ModuleManager
	scene       *scene.Scene
	camera      *scene.Camera
	prep        *systems.ScenePrepPipeline
	uploader    *systems.UploadCoordinator
	inline      *systems.InlineTransfersCoordinator
	descriptors *systems.DescriptorAllocator
	reclaimer   *systems.DeferredReclaimer
	dispatcher  core.Dispatcher
	events      *core.EventBus

	accumulator *core.FixedStepAccumulator
	sequence    metadata.FrameSequenceNumber
	slot        metadata.FrameSlot
	timeSeconds float64
	// Fence signalled at Submit, per slot; FrameStart of a later cycle
	// retires against it.
	slotFences []metadata.FenceValue
	fatal      error
}

type SchedulerDeps struct {
	Graphics    renderer.Graphics
	Modules     *ModuleManager
	Scene       *scene.Scene
	Camera      *scene.Camera
	Prep        *systems.ScenePrepPipeline
	Uploader    *systems.UploadCoordinator
	// Optional; hosts without inline graphics-queue writes leave it nil.
	Inline      *systems.InlineTransfersCoordinator
	Descriptors *systems.DescriptorAllocator
	Reclaimer   *systems.DeferredReclaimer
	Dispatcher  core.Dispatcher
	Events      *core.EventBus
}

func NewScheduler(config *SchedulerConfig, deps *SchedulerDeps) (*Scheduler, error) {
	if config.FramesInFlight == 0 {
		err := fmt.Errorf("func NewScheduler - config.FramesInFlight must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	if config.FixedStepSeconds <= 0 {
		config.FixedStepSeconds = 1.0 / 60.0
	}
	if config.MaxFixedTicksPerFrame <= 0 {
		config.MaxFixedTicksPerFrame = 4
	}
	return &Scheduler{
		Config:      config,
		graphics:    deps.Graphics,
		modules:     deps.Modules,
		scene:       deps.Scene,
		camera:      deps.Camera,
		prep:        deps.Prep,
		uploader:    deps.Uploader,
		inline:      deps.Inline,
		descriptors: deps.Descriptors,
		reclaimer:   deps.Reclaimer,
		dispatcher:  deps.Dispatcher,
		events:      deps.Events,
		accumulator: core.NewFixedStepAccumulator(config.FixedStepSeconds, config.MaxFixedTicksPerFrame),
		slotFences:  make([]metadata.FenceValue, config.FramesInFlight),
	}, nil
}

func (s *Scheduler) Sequence() metadata.FrameSequenceNumber {
	return s.sequence
}

func (s *Scheduler) Slot() metadata.FrameSlot {
	return s.slot
}

// RunFrame executes one full frame. A fatal module failure cancels the
// remaining phases but still performs the Submit and Present
// bookkeeping and advances the slot; the fatal error is returned to
// the host.
func (s *Scheduler) RunFrame(ctx context.Context, deltaSeconds float64) error {
	s.sequence++
	s.timeSeconds += deltaSeconds
	s.fatal = nil

	frame := &FrameContext{
		Sequence:         s.sequence,
		Slot:             s.slot,
		DeltaSeconds:     deltaSeconds,
		TimeSeconds:      s.timeSeconds,
		FixedStepSeconds: s.Config.FixedStepSeconds,
		Graphics:         s.graphics,
		Scene:            s.scene,
	}

	for phase := PhaseFrameStart; phase < PhaseCount; phase++ {
		if frame.Cancelled && !s.runsWhenCancelled(phase) {
			continue
		}
		s.runPhase(ctx, phase, frame, deltaSeconds)
	}
	return s.fatal
}

// runsWhenCancelled keeps the swap chain alive through a cancelled
// frame: submission and present bookkeeping still happen, as does the
// end-of-frame slot advance.
func (s *Scheduler) runsWhenCancelled(phase PhaseID) bool {
	return phase == PhaseSubmit || phase == PhasePresent || phase == PhaseFrameEnd
}

func (s *Scheduler) runPhase(ctx context.Context, phase PhaseID, frame *FrameContext, deltaSeconds float64) {
	s.beforeModules(phase, frame)

	ticks := 1
	if phase == PhaseFixedSimulation {
		ticks = s.accumulator.Advance(deltaSeconds)
	}
	for tick := 0; tick < ticks && !frame.Cancelled; tick++ {
		s.dispatchModules(ctx, phase, frame)
	}

	if !frame.Cancelled || s.runsWhenCancelled(phase) {
		s.afterModules(phase, frame)
	}
}

// dispatchModules runs every subscribed module for the phase through a
// fresh nursery; the phase completes only after the nursery drains.
func (s *Scheduler) dispatchModules(ctx context.Context, phase PhaseID, frame *FrameContext) {
	modules := s.modules.ModulesForPhase(phase)
	if len(modules) == 0 {
		return
	}

	nursery := core.NewNursery(ctx, s.dispatcher)
	frame.Nursery = nursery
	for _, module := range modules {
		if frame.Cancelled {
			break
		}
		if err := s.invokeModule(nursery.Context(), module, phase, frame); err != nil {
			s.modules.MarkFailed(module, err)
			if core.IsFatal(err) {
				s.cancelFrame(frame, nursery, err)
			}
		}
	}
	if err := nursery.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		core.LogError("phase %s: task failure: %s", phase.String(), err.Error())
		if core.IsFatal(err) {
			s.cancelFrame(frame, nursery, err)
		}
	}
	frame.Nursery = nil
}

func (s *Scheduler) invokeModule(ctx context.Context, module Module, phase PhaseID, frame *FrameContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module %q panicked in %s: %v", module.Name(), phase.String(), r)
		}
	}()
	return module.OnPhase(ctx, phase, frame)
}

func (s *Scheduler) cancelFrame(frame *FrameContext, nursery *core.Nursery, cause error) {
	if frame.Cancelled {
		return
	}
	frame.Cancelled = true
	if nursery != nil {
		nursery.Cancel()
	}
	if s.fatal == nil {
		s.fatal = cause
	}
	core.LogError("frame %d cancelled: %s", uint64(frame.Sequence), cause.Error())

	code := core.EVENT_CODE_DEVICE_LOST
	if errors.Is(cause, core.ErrSurfaceExpired) {
		code = core.EVENT_CODE_SURFACE_EXPIRED
	}
	if s.events != nil {
		s.events.Fire(core.EventContext{Type: code, Data: cause})
	}
	if errors.Is(cause, core.ErrDeviceLost) && s.uploader != nil {
		s.uploader.OnDeviceLost()
	}
}

// beforeModules is the engine-side work that precedes module dispatch
// for a phase.
func (s *Scheduler) beforeModules(phase PhaseID, frame *FrameContext) {
	switch phase {
	case PhaseFrameStart:
		// Reclamation for this slot happens before any new allocation
		// on it.
		s.reclaimer.OnFrameStart(frame.Slot)
		completed := s.graphics.Queue(metadata.QueueRoleGraphics).GetCompletedValue()
		s.descriptors.RetireCompleted(completed)
		s.uploader.OnFrameStart(frame.Slot)
		if s.inline != nil {
			s.inline.OnFrameStart(frame.Slot)
		}
		if err := s.uploader.Flush(); err != nil && core.IsFatal(err) {
			s.cancelFrame(frame, nil, err)
		}
	}
}

// afterModules is the engine-side work that follows module dispatch.
func (s *Scheduler) afterModules(phase PhaseID, frame *FrameContext) {
	switch phase {
	case PhaseTransformPropagation:
		if !frame.Cancelled {
			s.scene.Update()
		}
	case PhaseScenePrep:
		if !frame.Cancelled {
			s.runScenePrep(frame)
		}
	case PhaseSubmit:
		// Signalled even on a cancelled frame so in-flight work retires
		// and the slot's resources come back.
		s.slotFences[frame.Slot] = s.graphics.Queue(metadata.QueueRoleGraphics).Signal()
	case PhaseFrameEnd:
		if s.inline != nil {
			s.inline.OnFrameEnd(frame.Slot)
		}
		core.MetricsUpdate(frame.DeltaSeconds)
		s.slot = metadata.FrameSlot((uint32(s.slot) + 1) % s.Config.FramesInFlight)
	}
}

func (s *Scheduler) runScenePrep(frame *FrameContext) {
	for _, node := range s.scene.DrainDestroyed() {
		s.prep.ForgetNode(node)
	}
	view := scene.BuildViewContext(s.camera, s.Config.ViewportWidth, s.Config.ViewportHeight, float32(frame.TimeSeconds))
	frame.View = view

	inputs := s.scene.CollectRenderables()
	prepared, err := s.prep.Collect(view, inputs, frame.Sequence, s.scene.CollectLights())
	if err != nil {
		if core.IsFatal(err) {
			s.cancelFrame(frame, nil, err)
			return
		}
		core.LogError("scene prep failed for frame %d: %s", uint64(frame.Sequence), err.Error())
		return
	}
	frame.Prepared = prepared
}

// SlotFence returns the fence signalled at the given slot's last
// Submit phase.
func (s *Scheduler) SlotFence(slot metadata.FrameSlot) metadata.FenceValue {
	return s.slotFences[slot]
}
