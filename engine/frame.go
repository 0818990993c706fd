package engine

import (
	"github.com/oxyengine/oxygen/engine/core"
	"github.com/oxyengine/oxygen/engine/renderer"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
	"github.com/oxyengine/oxygen/engine/scene"
	"github.com/oxyengine/oxygen/engine/systems"
)

// FrameContext is the per-frame control block handed to every module
// phase callback. The scheduler seeds it at FrameStart and owns it; a
// new frame gets fresh sequence, slot and timing values.
type FrameContext struct {
	Sequence metadata.FrameSequenceNumber
	Slot     metadata.FrameSlot

	DeltaSeconds float64
	TimeSeconds  float64
	// Step length of the FixedSimulation phase.
	FixedStepSeconds float64

	Graphics renderer.Graphics
	Scene    *scene.Scene
	View     *systems.ViewContext

	// Prepared is nil until the ScenePrep phase publishes the snapshot.
	Prepared *metadata.PreparedSceneFrame

	// Nursery of the currently running phase. Module callbacks may fan
	// sub-tasks into it; the phase waits for the nursery to drain.
	Nursery *core.Nursery

	// Cancelled flips when a fatal failure unwinds the frame. Remaining
	// phases are skipped except the Submit and Present bookkeeping that
	// keeps the swap chain alive.
	Cancelled bool
}
