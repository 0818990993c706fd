package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/oxyengine/oxygen/engine/config"
	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
	"github.com/oxyengine/oxygen/engine/scene"
	"github.com/oxyengine/oxygen/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

/**
 * Engine owns the frame pipeline: graphics backend, descriptor and
 * upload systems, the scene, the scene prep pipeline and the phase
 * scheduler. Hosts register modules for frame work and call Run (or
 * RunFrames from tests) to drive the loop.
 */
type Engine struct {
	currentStage Stage
	Config       *config.EngineConfig

	graphics    renderer.Graphics
	events      *core.EventBus
	jobs        *systems.JobSystem
	clock       *core.Clock
	reclaimer   *systems.DeferredReclaimer
	states      *systems.ResourceStateTracker
	descriptors *systems.DescriptorAllocator
	registry    *systems.ResourceRegistry
	uploader    *systems.UploadCoordinator
	inline      *systems.InlineTransfersCoordinator
	binder      *systems.TextureBinder
	materials   *systems.MaterialRegistry
	geometry    *systems.GeometryRegistry
	prep        *systems.ScenePrepPipeline
	scene       *scene.Scene
	camera      *scene.Camera
	modules     *ModuleManager
	scheduler   *Scheduler

	isRunning bool
	// Set on device loss; frames stall until the host fires
	// EVENT_CODE_DEVICE_RECREATED.
	awaitingDevice bool
	lastTime       float64
}

func New(cfg *config.EngineConfig) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		Config:       cfg,
		events:       core.NewEventBus(),
		clock:        core.NewClock(),
		modules:      NewModuleManager(),
	}, nil
}

func backendFromName(name string) (renderer.BackendType, error) {
	switch strings.ToLower(name) {
	case "", "headless":
		return renderer.Headless, nil
	case "d3d12":
		return renderer.D3D12, nil
	}
	return renderer.Headless, fmt.Errorf("func backendFromName - unknown backend %q", name)
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if level := e.Config.Application.LogLevel; level != "" {
		if err := core.LogSetLevel(level); err != nil {
			return fmt.Errorf("func Engine.Initialize - log level: %w", err)
		}
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	backend, err := backendFromName(e.Config.Renderer.Backend)
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	e.graphics, err = renderer.NewGraphics(backend)
	if err != nil {
		return err
	}

	framesInFlight := e.Config.Renderer.FramesInFlight
	if framesInFlight == 0 {
		framesInFlight = 3
	}

	e.jobs, err = systems.NewJobSystem(e.Config.Jobs.Workers, e.Config.Jobs.ChannelSize)
	if err != nil {
		return err
	}
	e.reclaimer, err = systems.NewDeferredReclaimer(&systems.DeferredReclaimerConfig{FramesInFlight: framesInFlight})
	if err != nil {
		return err
	}
	e.states = systems.NewResourceStateTracker()
	e.graphics.BindStateMap(e.states)

	graphicsQueue := e.graphics.Queue(metadata.QueueRoleGraphics)
	e.descriptors, err = systems.NewDescriptorAllocator(&systems.DescriptorAllocatorConfig{
		Strategy:      e.graphics.DescriptorStrategy(),
		FenceObserver: graphicsQueue.GetCompletedValue,
	}, e.graphics)
	if err != nil {
		return err
	}
	e.registry, err = systems.NewResourceRegistry(&systems.ResourceRegistryConfig{
		CurrentSlot: func() metadata.FrameSlot {
			if e.scheduler != nil {
				return e.scheduler.Slot()
			}
			return 0
		},
	}, e.descriptors, e.reclaimer, e.graphics)
	if err != nil {
		return err
	}

	provider, err := e.buildStagingProvider(framesInFlight)
	if err != nil {
		return err
	}
	e.uploader, err = systems.NewUploadCoordinator(&systems.UploadCoordinatorConfig{
		FramesInFlight: framesInFlight,
		Providers: map[metadata.QueueRole]systems.StagingProvider{
			metadata.QueueRoleCopy: provider,
		},
	}, e.graphics)
	if err != nil {
		return err
	}

	// Direct writes recorded on graphics command lists use their own
	// transient staging, fenced per slot by the scheduler.
	transient, err := systems.NewSingleBufferStaging(&systems.SingleBufferStagingConfig{
		InitialCapacity: e.Config.Staging.PartitionCapacity,
		Slack:           float64(e.Config.Staging.GrowSlackPercent) / 100.0,
	}, e.graphics)
	if err != nil {
		return err
	}
	e.inline = systems.NewInlineTransfersCoordinator(graphicsQueue, transient)

	e.binder = systems.NewTextureBinder(e.graphics, e.registry, e.uploader)
	e.materials = systems.NewMaterialRegistry(e.binder)
	e.geometry = systems.NewGeometryRegistry(e.graphics, e.registry, e.uploader)

	e.scene, err = scene.NewScene(&scene.SceneConfig{})
	if err != nil {
		return err
	}
	e.camera = scene.NewCamera()

	e.prep = systems.NewScenePrepPipeline(&systems.ScenePrepConfig{
		Workers: e.Config.Jobs.Workers,
	}, systems.NewTransformManager(), e.materials, systems.NewGeometryResidencyCache(e.geometry), e.jobs)

	fixedStep := 1.0 / 60.0
	if e.Config.Renderer.FixedStepHz > 0 {
		fixedStep = 1.0 / e.Config.Renderer.FixedStepHz
	}
	e.scheduler, err = NewScheduler(&SchedulerConfig{
		FramesInFlight:   framesInFlight,
		FixedStepSeconds: fixedStep,
		ViewportWidth:    e.Config.Application.Width,
		ViewportHeight:   e.Config.Application.Height,
	}, &SchedulerDeps{
		Graphics:    e.graphics,
		Modules:     e.modules,
		Scene:       e.scene,
		Camera:      e.camera,
		Prep:        e.prep,
		Uploader:    e.uploader,
		Inline:      e.inline,
		Descriptors: e.descriptors,
		Reclaimer:   e.reclaimer,
		Dispatcher:  e.jobs,
		Events:      e.events,
	})
	if err != nil {
		return err
	}

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_DEVICE_LOST, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_DEVICE_RECREATED, e, e.onEvent)

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized with backend %q, %d frames in flight",
		e.graphics.Name(), framesInFlight)
	return nil
}

func (e *Engine) buildStagingProvider(framesInFlight uint32) (systems.StagingProvider, error) {
	staging := e.Config.Staging
	slack := float64(staging.GrowSlackPercent) / 100.0
	switch strings.ToLower(staging.Policy) {
	case "", "ring":
		return systems.NewRingStaging(&systems.RingStagingConfig{
			Partitions:        framesInFlight,
			PartitionCapacity: staging.PartitionCapacity,
			Slack:             slack,
		}, e.graphics)
	case "single":
		return systems.NewSingleBufferStaging(&systems.SingleBufferStagingConfig{
			InitialCapacity: staging.PartitionCapacity,
			Slack:           slack,
		}, e.graphics)
	case "double":
		return systems.NewDoubleBufferedStaging(staging.PartitionCapacity, e.graphics)
	}
	return nil, fmt.Errorf("func Engine.buildStagingProvider - unknown staging policy %q", staging.Policy)
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down")
		e.isRunning = false
		return true
	case core.EVENT_CODE_DEVICE_LOST:
		e.awaitingDevice = true
	case core.EVENT_CODE_DEVICE_RECREATED:
		e.awaitingDevice = false
	}
	return false
}

// Accessors used by modules and the testbed.

func (e *Engine) Graphics() renderer.Graphics { return e.graphics }

func (e *Engine) Events() *core.EventBus { return e.events }

func (e *Engine) Scene() *scene.Scene { return e.scene }

func (e *Engine) Camera() *scene.Camera { return e.camera }

func (e *Engine) Modules() *ModuleManager { return e.modules }

func (e *Engine) Uploader() *systems.UploadCoordinator { return e.uploader }

func (e *Engine) InlineTransfers() *systems.InlineTransfersCoordinator { return e.inline }

func (e *Engine) Registry() *systems.ResourceRegistry { return e.registry }
func (e *Engine) Prepared() *metadata.PreparedSceneFrame {
	return e.prep.Published()
}

func (e *Engine) RegisterModule(module Module) error {
	return e.modules.Register(module)
}

// RunFrames drives a fixed number of frames; the harness for tests and
// the testbed. Frames stall (but time advances) while the device is
// awaiting recreation.
func (e *Engine) RunFrames(ctx context.Context, count int) error {
	for i := 0; i < count; i++ {
		if err := e.stepFrame(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run loops until an application quit event fires or the context is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.currentStage = EngineStageRunning
	e.isRunning = true
	e.clock.Start()
	for e.isRunning {
		select {
		case <-ctx.Done():
			e.isRunning = false
		default:
			if err := e.stepFrame(ctx); err != nil {
				core.LogError("frame failed: %s", err.Error())
			}
		}
	}
	return e.Shutdown()
}

func (e *Engine) stepFrame(ctx context.Context) error {
	e.clock.Update()
	now := e.clock.Elapsed()
	delta := now - e.lastTime
	e.lastTime = now
	if delta <= 0 {
		delta = 1.0 / 240.0
	}

	if e.awaitingDevice {
		// Keep the loop alive without touching GPU state until the
		// host recreates the device.
		return nil
	}
	return e.scheduler.RunFrame(ctx, delta)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	core.LogInfo("engine shutting down")

	if err := e.modules.Shutdown(); err != nil {
		core.LogError("module shutdown: %s", err.Error())
	}
	if e.uploader != nil {
		if err := e.uploader.Shutdown(); err != nil {
			core.LogError("upload coordinator shutdown: %s", err.Error())
		}
	}
	if e.registry != nil {
		if err := e.registry.Shutdown(); err != nil {
			core.LogError("resource registry shutdown: %s", err.Error())
		}
	}
	if e.reclaimer != nil {
		if err := e.reclaimer.Shutdown(); err != nil {
			core.LogError("reclaimer shutdown: %s", err.Error())
		}
	}
	if e.jobs != nil {
		e.jobs.Shutdown()
	}
	if e.graphics != nil {
		if err := e.graphics.Shutdown(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageUninitialized
	return nil
}

func (e *Engine) CurrentStage() Stage {
	return e.currentStage
}
