package scene

import (
	"github.com/oxyengine/oxygen/engine/math"
	"github.com/oxyengine/oxygen/engine/renderer/metadata"
)

// DirectionalLight is the scene-side description of a sun-style light.
type DirectionalLight struct {
	Name              string
	Color             math.Vec3
	Intensity         float32
	Direction         math.Vec3
	AngularSizeRadian float32
	CastsShadows      bool
	Enabled           bool
}

func NewDirectionalLight(name string) *DirectionalLight {
	return &DirectionalLight{
		Name:      name,
		Color:     math.NewVec3One(),
		Intensity: 1.0,
		Direction: math.NewVec3(0, -1, 0),
		Enabled:   true,
	}
}

func (s *Scene) AddDirectionalLight(light *DirectionalLight) {
	s.lights = append(s.lights, light)
}

func (s *Scene) RemoveDirectionalLight(light *DirectionalLight) {
	for i, l := range s.lights {
		if l == light {
			s.lights = append(s.lights[:i], s.lights[i+1:]...)
			return
		}
	}
}

// CollectLights packs enabled lights into the GPU record layout.
func (s *Scene) CollectLights() []metadata.DirectionalLightBasic {
	out := make([]metadata.DirectionalLightBasic, 0, len(s.lights))
	for _, light := range s.lights {
		if !light.Enabled {
			continue
		}
		direction := light.Direction.Normalized()
		flags := metadata.DirectionalLightAffectsWorld
		if light.CastsShadows {
			flags |= metadata.DirectionalLightCastsShadows
		}
		out = append(out, metadata.DirectionalLightBasic{
			ColorRGB:          [3]float32{light.Color.X, light.Color.Y, light.Color.Z},
			Intensity:         light.Intensity,
			DirectionWS:       [3]float32{direction.X, direction.Y, direction.Z},
			AngularSizeRadian: light.AngularSizeRadian,
			ShadowIndex:       metadata.InvalidID,
			Flags:             flags,
		})
	}
	return out
}
