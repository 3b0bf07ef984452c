package testutil

import (
	"encoding/json"
	"testing"

	"github.com/c360/trajstream/codec"
)

// Frames returns n frames numbered from 0, each timeStep apart, with two
// agents. Values are exactly representable as float32.
func Frames(n int, timeStep float64) []codec.Frame {
	frames := make([]codec.Frame, n)
	for i := range frames {
		frames[i] = Frame(i, float64(i)*timeStep)
	}
	return frames
}

// Frame returns a single two-agent frame.
func Frame(number int, time float64) codec.Frame {
	return codec.Frame{
		FrameNumber: number,
		Time:        time,
		Agents: []codec.AgentRecord{
			{VisType: codec.VisTypeDefault, TypeID: 0, X: float64(number), Y: 1, Z: 2, CR: 0.5},
			{VisType: codec.VisTypeFiber, TypeID: 1, X: 3, Y: 4, Z: 5, CR: 1,
				Subpoints: []float64{0, 0, 0, 1, 1, 1}},
		},
	}
}

// Info returns trajectory metadata for totalSteps steps of timeStep.
func Info(totalSteps int, timeStep float64) codec.TrajectoryInfo {
	return codec.TrajectoryInfo{
		Version:      codec.ContainerVersion,
		TimeStepSize: timeStep,
		TotalSteps:   totalSteps,
		Size:         &codec.Vec3{X: 100, Y: 100, Z: 100},
		TypeMapping: map[string]codec.TypeMapping{
			"0": {Name: "sphere"},
			"1": {Name: "fiber"},
		},
	}
}

// ContainerBytes encodes info and frames as a binary container.
func ContainerBytes(t testing.TB, info codec.TrajectoryInfo, frames []codec.Frame) []byte {
	t.Helper()
	raw, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshal trajectory info: %v", err)
	}
	return codec.EncodeContainer(
		codec.Block{Type: codec.BlockTrajectoryInfo, Data: raw},
		codec.Block{Type: codec.BlockSpatialDataBinary, Data: codec.EncodeBinaryFrames(frames)},
	)
}

// Container encodes and decodes a container in one step.
func Container(t testing.TB, info codec.TrajectoryInfo, frames []codec.Frame) *codec.Container {
	t.Helper()
	c, err := codec.DecodeContainer(ContainerBytes(t, info, frames))
	if err != nil {
		t.Fatalf("decode container: %v", err)
	}
	return c
}
