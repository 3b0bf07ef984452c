package source

import (
	"math"
	"strconv"

	"github.com/c360/trajstream/codec"
)

// OrbitModel is a deterministic model of agents circling the origin in the
// xy plane, one ring per agent type.
type OrbitModel struct {
	Agents   int
	Types    int
	Radius   float64
	TimeStep float64
	// Period is the number of frames per revolution.
	Period int
}

// NewOrbitModel returns a model with sensible defaults for n agents.
func NewOrbitModel(n int) *OrbitModel {
	return &OrbitModel{
		Agents:   n,
		Types:    3,
		Radius:   10,
		TimeStep: 1,
		Period:   120,
	}
}

// Info describes the orbit trajectory. It is open-ended, so TotalSteps is 0.
func (m *OrbitModel) Info() codec.TrajectoryInfo {
	extent := 2*m.Radius*float64(max(m.Types, 1)) + 2
	mapping := make(map[string]codec.TypeMapping, m.Types)
	for i := 0; i < m.Types; i++ {
		mapping[strconv.Itoa(i)] = codec.TypeMapping{Name: "ring-" + strconv.Itoa(i)}
	}
	return codec.TrajectoryInfo{
		Version:      codec.ContainerVersion,
		TimeStepSize: m.TimeStep,
		Size:         &codec.Vec3{X: extent, Y: extent, Z: extent},
		TypeMapping:  mapping,
	}
}

// Update places every agent for frame n.
func (m *OrbitModel) Update(n int) ([]float64, error) {
	types := max(m.Types, 1)
	period := float64(max(m.Period, 1))
	agents := make([]codec.AgentRecord, m.Agents)

	for i := range agents {
		typeID := i % types
		radius := m.Radius * float64(typeID+1)
		phase := 2 * math.Pi * float64(i) / float64(max(m.Agents, 1))
		angle := 2*math.Pi*float64(n)/period + phase
		agents[i] = codec.AgentRecord{
			VisType: codec.VisTypeDefault,
			TypeID:  typeID,
			X:       radius * math.Cos(angle),
			Y:       radius * math.Sin(angle),
			ZRot:    angle,
			CR:      1,
		}
	}
	return codec.EncodeFlatRecord(agents), nil
}
