package codec

import (
	"encoding/json"
	"math"
)

// VisType distinguishes how an agent is drawn.
type VisType int

// Visualization types.
const (
	VisTypeDefault VisType = 1000
	VisTypeFiber   VisType = 1001
)

// AgentRecord is the decoded state of one agent in one frame.
type AgentRecord struct {
	VisType   VisType
	TypeID    int
	X, Y, Z   float64
	XRot      float64
	YRot      float64
	ZRot      float64
	CR        float64
	Subpoints []float64
}

// Frame is the state of every agent at one simulation time step.
type Frame struct {
	FrameNumber int
	Time        float64
	Agents      []AgentRecord
}

// frameHeaderBytes is frameNumber, time and agent count on the wire.
const frameHeaderBytes = 12

// Size estimates the frame's footprint as its binary encoding length. The
// frame cache bounds itself by this figure.
func (f Frame) Size() int {
	n := frameHeaderBytes
	for _, a := range f.Agents {
		n += 4 * (agentFixedFields + 1 + len(a.Subpoints))
	}
	return n
}

// Vec3 is a point or extent in simulation space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TypeMapping describes one agent type referenced by typeId.
type TypeMapping struct {
	Name     string          `json:"name"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
}

// TrajectoryInfo is the metadata block of a trajectory.
type TrajectoryInfo struct {
	Version       int                    `json:"version,omitempty"`
	TimeStepSize  float64                `json:"timeStepSize"`
	TotalSteps    int                    `json:"totalSteps"`
	TimeUnits     json.RawMessage        `json:"timeUnits,omitempty"`
	SpatialUnits  json.RawMessage        `json:"spatialUnits,omitempty"`
	Size          *Vec3                  `json:"size,omitempty"`
	CameraDefault json.RawMessage        `json:"cameraDefault,omitempty"`
	TypeMapping   map[string]TypeMapping `json:"typeMapping,omitempty"`
	ModelInfo     json.RawMessage        `json:"modelInfo,omitempty"`
}

// TotalDuration is the simulated time covered by the trajectory.
func (ti TrajectoryInfo) TotalDuration() float64 {
	return float64(ti.TotalSteps) * ti.TimeStepSize
}

// TimeTolerance is the half-step window within which a frame time matches a
// requested time.
func (ti TrajectoryInfo) TimeTolerance() float64 {
	return TimeTolerance(ti.TimeStepSize)
}

// TimeTolerance returns the matching window for a time step. With no known
// step only float32 rounding is tolerated.
func TimeTolerance(timeStep float64) float64 {
	if timeStep > 0 {
		return timeStep / 2
	}
	return 1e-6
}

// TimesMatch reports whether a and b are within tol of each other.
func TimesMatch(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
