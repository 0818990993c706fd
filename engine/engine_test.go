package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxyengine/oxygen/engine/config"
	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/math"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
	"github.com/oxyengine/oxygen/engine/scene"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	return e
}

func TestEngineInitializeWithDefaults(t *testing.T) {
	e := newTestEngine(t)
	defer func() { require.NoError(t, e.Shutdown()) }()

	assert.Equal(t, EngineStageInitialized, e.CurrentStage())
	assert.Equal(t, "headless", e.Graphics().Name())
	assert.NotNil(t, e.Scene())
	assert.NotNil(t, e.Camera())
	assert.Nil(t, e.Prepared())
}

func TestEngineRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Renderer.Backend = "vulkan"
	e, err := New(cfg)
	require.NoError(t, err)
	assert.Error(t, e.Initialize())
}

func TestEngineRejectsUnknownLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Application.LogLevel = "chatty"
	e, err := New(cfg)
	require.NoError(t, err)
	assert.Error(t, e.Initialize())
}

func TestEngineRunFramesPublishesScene(t *testing.T) {
	e := newTestEngine(t)
	defer func() { require.NoError(t, e.Shutdown()) }()

	node, err := e.Scene().CreateNode("box", e.Scene().Root())
	require.NoError(t, err)
	local := math.TransformCreate()
	local.SetPosition(math.NewVec3(0, 0, -5))
	require.NoError(t, e.Scene().SetLocalTransform(node, local))
	require.NoError(t, e.Scene().SetRenderable(node, &scene.RenderableComponent{
		Geometry: &metadata.GeometryAsset{
			Key:  1,
			Name: "box",
			LODs: []metadata.MeshLOD{{
				Submeshes:   []metadata.Submesh{{IndexCount: 36}},
				VertexData:  make([]byte, 96),
				IndexData:   make([]byte, 72),
				VertexCount: 8,
				IndexCount:  36,
				IsIndexed:   true,
			}},
			Bounds: math.BoundingSphere{Radius: 1},
		},
		Layer:    metadata.RenderLayerDefault,
		PassMask: metadata.PassOpaque,
	}))

	require.NoError(t, e.RunFrames(context.Background(), 3))

	prepared := e.Prepared()
	require.NotNil(t, prepared)
	assert.Len(t, prepared.DrawMetadata, 1)
}

func TestEngineRunStopsOnQuitEvent(t *testing.T) {
	e := newTestEngine(t)

	frames := 0
	quitter := newStub("quitter", 0, MaskOf(PhaseFrameEnd))
	quitter.onPhase = func(phase PhaseID, frame *FrameContext) error {
		frames++
		if frames == 2 {
			e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		}
		return nil
	}
	require.NoError(t, e.RegisterModule(quitter))

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 2, frames)
	assert.Equal(t, 1, quitter.shutdowns)
	assert.Equal(t, EngineStageUninitialized, e.CurrentStage())
}

func TestEngineStallsWhileDeviceIsLost(t *testing.T) {
	e := newTestEngine(t)
	defer func() { require.NoError(t, e.Shutdown()) }()

	frames := 0
	counter := newStub("counter", 0, MaskOf(PhaseFrameEnd))
	counter.onPhase = func(phase PhaseID, frame *FrameContext) error {
		frames++
		return nil
	}
	require.NoError(t, e.RegisterModule(counter))

	require.NoError(t, e.RunFrames(context.Background(), 1))
	assert.Equal(t, 1, frames)

	// Frames stall between device loss and recreation.
	e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_DEVICE_LOST})
	require.NoError(t, e.RunFrames(context.Background(), 2))
	assert.Equal(t, 1, frames)

	e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_DEVICE_RECREATED})
	require.NoError(t, e.RunFrames(context.Background(), 2))
	assert.Equal(t, 3, frames)
}
