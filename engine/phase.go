package engine

// PhaseID names one step of the fixed per-frame sequence. The scheduler
// traverses all phases in declaration order every frame; there is no
// re-entry into an earlier phase.
type PhaseID uint8

const (
	PhaseFrameStart PhaseID = iota
	PhaseInput
	PhaseFixedSimulation
	PhaseGameplayUpdate
	PhaseTransformPropagation
	PhaseScenePrep
	PhaseRender
	PhaseSubmit
	PhasePresent
	PhaseFrameEnd
	PhaseCount
)

func (p PhaseID) String() string {
	switch p {
	case PhaseFrameStart:
		return "frame_start"
	case PhaseInput:
		return "input"
	case PhaseFixedSimulation:
		return "fixed_simulation"
	case PhaseGameplayUpdate:
		return "gameplay_update"
	case PhaseTransformPropagation:
		return "transform_propagation"
	case PhaseScenePrep:
		return "scene_prep"
	case PhaseRender:
		return "render"
	case PhaseSubmit:
		return "submit"
	case PhasePresent:
		return "present"
	case PhaseFrameEnd:
		return "frame_end"
	}
	return "unknown"
}

// PhaseMask is a bitset over PhaseID.
type PhaseMask uint16

func MaskOf(phases ...PhaseID) PhaseMask {
	var mask PhaseMask
	for _, p := range phases {
		mask |= 1 << p
	}
	return mask
}

// AllPhases covers every phase of the frame.
const AllPhases = PhaseMask(1<<PhaseCount) - 1

func (m PhaseMask) Contains(p PhaseID) bool {
	return m&(1<<p) != 0
}
