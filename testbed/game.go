package testbed

import (
	"context"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/oxyengine/oxygen/engine"
	"github.com/oxyengine/oxygen/engine/containers"
	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/math"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
	"github.com/oxyengine/oxygen/engine/scene"
)

/**
 * TestGame drives the engine with a procedural scene: a grid of spinning
 * cubes with distance-based LOD, one screen-space-error tower, a camera
 * orbit and a render module that consumes the prepared frame snapshot.
 */
type TestGame struct {
	engine *engine.Engine

	cubes []scene.NodeHandle
	tower scene.NodeHandle
}

func NewTestGame(e *engine.Engine) *TestGame {
	return &TestGame{engine: e}
}

// Setup populates the scene and registers the gameplay modules. Call it
// after engine.Initialize and before the frame loop.
func (g *TestGame) Setup() error {
	core.LogInfo("booting testbed...")

	s := g.engine.Scene()

	material := newCheckerMaterial("checker")
	cube := newCubeGeometry("cube")

	const gridSize = 4
	for z := 0; z < gridSize; z++ {
		for x := 0; x < gridSize; x++ {
			handle, err := s.CreateNode(fmt.Sprintf("cube_%d_%d", x, z), s.Root())
			if err != nil {
				return err
			}
			transform := math.TransformFromPosition(math.NewVec3(
				float32(x-gridSize/2)*3.0, 0, float32(z-gridSize/2)*3.0-10))
			if err := s.SetLocalTransform(handle, transform); err != nil {
				return err
			}
			if err := s.SetRenderable(handle, &scene.RenderableComponent{
				Geometry:  cube,
				Materials: []*metadata.MaterialAsset{material},
				Policy: metadata.MeshResolvePolicy{
					Mode:       metadata.MeshResolveDistance,
					Distances:  []float32{18},
					Hysteresis: 0.1,
				},
				Layer:    metadata.RenderLayerDefault,
				PassMask: metadata.PassOpaque | metadata.PassDepthPrepass,
			}); err != nil {
				return err
			}
			g.cubes = append(g.cubes, handle)
		}
	}

	tower, err := s.CreateNode("tower", s.Root())
	if err != nil {
		return err
	}
	towerTransform := math.TransformFromPositionRotationScale(
		math.NewVec3(0, 3, -14), math.NewQuatIdentity(), math.NewVec3(1, 4, 1))
	if err := s.SetLocalTransform(tower, towerTransform); err != nil {
		return err
	}
	if err := s.SetRenderable(tower, &scene.RenderableComponent{
		Geometry:  cube,
		Materials: []*metadata.MaterialAsset{material},
		Policy: metadata.MeshResolvePolicy{
			Mode:        metadata.MeshResolveScreenSpaceError,
			ErrorBudget: 2.0,
			EnterScale:  0.8,
			ExitScale:   1.25,
		},
		Layer:    metadata.RenderLayerDefault,
		PassMask: metadata.PassOpaque,
	}); err != nil {
		return err
	}
	g.tower = tower

	sun := scene.NewDirectionalLight("sun")
	sun.Direction = math.NewVec3(-0.4, -1, -0.3).Normalized()
	sun.Intensity = 1.2
	s.AddDirectionalLight(sun)

	camera := g.engine.Camera()
	camera.SetPosition(math.NewVec3(0, 4, 6))
	camera.Pitch(-0.3)

	for _, module := range []engine.Module{
		&cameraOrbitModule{camera: camera},
		&spinModule{game: g},
		&frameStatsModule{},
	} {
		if err := g.engine.RegisterModule(module); err != nil {
			return err
		}
	}
	return nil
}

// spinModule rotates every cube during GameplayUpdate.
type spinModule struct {
	game  *TestGame
	angle float32
}

func (m *spinModule) Name() string             { return "testbed.spin" }
func (m *spinModule) Priority() int32          { return 0 }
func (m *spinModule) Phases() engine.PhaseMask { return engine.MaskOf(engine.PhaseGameplayUpdate) }
func (m *spinModule) OnShutdown() error        { return nil }

func (m *spinModule) OnPhase(ctx context.Context, phase engine.PhaseID, frame *engine.FrameContext) error {
	m.angle += float32(frame.DeltaSeconds) * 0.8
	rotation := math.NewQuatFromAxisAngle(math.NewVec3Up(), m.angle)
	for i, handle := range m.game.cubes {
		transform, err := frame.Scene.LocalTransform(handle)
		if err != nil {
			return err
		}
		local := rotation
		if i%2 == 1 {
			local = math.NewQuatFromAxisAngle(math.NewVec3Up(), -m.angle)
		}
		transform.SetRotation(local)
		if err := frame.Scene.SetLocalTransform(handle, transform); err != nil {
			return err
		}
	}
	return nil
}

// cameraOrbitModule sweeps the camera back and forth so distance LOD
// transitions actually trigger.
type cameraOrbitModule struct {
	camera *scene.Camera
	time   float64
}

func (m *cameraOrbitModule) Name() string             { return "testbed.camera" }
func (m *cameraOrbitModule) Priority() int32          { return -10 }
func (m *cameraOrbitModule) Phases() engine.PhaseMask { return engine.MaskOf(engine.PhaseInput) }
func (m *cameraOrbitModule) OnShutdown() error        { return nil }

func (m *cameraOrbitModule) OnPhase(ctx context.Context, phase engine.PhaseID, frame *engine.FrameContext) error {
	m.time += frame.DeltaSeconds
	m.camera.Yaw(float32(frame.DeltaSeconds) * 0.15)
	m.camera.MoveForward(math32.Sin(float32(m.time)*0.5) * float32(frame.DeltaSeconds) * 4)
	return nil
}

// frameStatsModule runs late in Render and logs what the prepared frame
// holds once per second. It stands in for real render passes.
type frameStatsModule struct {
	lastLog float64
	// Rolling window of recent frame times for the average in the log.
	window    *containers.RingQueue[float64]
	windowSum float64
}

// recordDelta folds the frame time into the rolling window and returns
// the windowed average in milliseconds.
func (m *frameStatsModule) recordDelta(delta float64) float64 {
	if m.window == nil {
		m.window = containers.NewRingQueue[float64](120)
	}
	if m.window.IsFull() {
		oldest, _ := m.window.Dequeue()
		m.windowSum -= oldest
	}
	m.window.Enqueue(delta)
	m.windowSum += delta
	return m.windowSum / float64(m.window.Len()) * 1000.0
}

func (m *frameStatsModule) Name() string             { return "testbed.stats" }
func (m *frameStatsModule) Priority() int32          { return 100 }
func (m *frameStatsModule) Phases() engine.PhaseMask { return engine.MaskOf(engine.PhaseRender) }
func (m *frameStatsModule) OnShutdown() error        { return nil }

func (m *frameStatsModule) OnPhase(ctx context.Context, phase engine.PhaseID, frame *engine.FrameContext) error {
	avgMS := m.recordDelta(frame.DeltaSeconds)
	prepared := frame.Prepared
	if prepared == nil {
		return nil
	}
	if frame.TimeSeconds-m.lastLog < 1.0 {
		return nil
	}
	m.lastLog = frame.TimeSeconds
	opaque := prepared.DrawsForPass(metadata.PassOpaque)
	core.LogInfo("frame %d: %d draws (%d opaque), %d transforms, %d lights, %.2fms avg, %.1f fps",
		prepared.Sequence, len(prepared.DrawMetadata), len(opaque),
		len(prepared.WorldMatrices), len(prepared.Lights), avgMS, core.MetricsFPS())
	return nil
}
