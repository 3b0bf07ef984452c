package codec

import (
	stderrors "errors"
	"fmt"
	"math"

	"github.com/c360/trajstream/errors"
)

// agentFixedFields is the number of fields before the subpoint count.
const agentFixedFields = 9

// Flat record sentinels
var (
	ErrTruncatedRecord = stderrors.New("agent record truncated")
	ErrSubpointCount   = stderrors.New("subpoint count overruns record")
)

// DecodeFlatRecord decodes a flat per-frame array into a Frame tagged with
// frameNumber and time. Every agent must be complete; leftover or missing
// values are a parse error.
func DecodeFlatRecord(values []float64, frameNumber int, time float64) (Frame, error) {
	frame := Frame{FrameNumber: frameNumber, Time: time}

	i := 0
	for i < len(values) {
		agent, next, err := decodeAgent(values, i)
		if err != nil {
			return Frame{}, errors.WrapParse(err, "codec", "DecodeFlatRecord",
				fmt.Sprintf("decode agent %d of frame %d", len(frame.Agents), frameNumber))
		}
		frame.Agents = append(frame.Agents, agent)
		i = next
	}

	return frame, nil
}

func decodeAgent(values []float64, i int) (AgentRecord, int, error) {
	remaining := len(values) - i
	if remaining < agentFixedFields+1 {
		return AgentRecord{}, 0, fmt.Errorf("%w: %d values left at offset %d", ErrTruncatedRecord, remaining, i)
	}

	v := values[i : i+agentFixedFields+1]
	count := v[agentFixedFields]
	if count < 0 || count != math.Trunc(count) {
		return AgentRecord{}, 0, fmt.Errorf("%w: invalid count %v at offset %d", ErrSubpointCount, count, i+agentFixedFields)
	}

	start := i + agentFixedFields + 1
	available := len(values) - start
	if count > float64(available) {
		return AgentRecord{}, 0, fmt.Errorf("%w: declared %v, %d available", ErrSubpointCount, count, available)
	}
	n := int(count)

	agent := AgentRecord{
		VisType: VisType(v[0]),
		TypeID:  int(v[1]),
		X:       v[2],
		Y:       v[3],
		Z:       v[4],
		XRot:    v[5],
		YRot:    v[6],
		ZRot:    v[7],
		CR:      v[8],
	}
	if n > 0 {
		agent.Subpoints = append([]float64(nil), values[start:start+n]...)
	}

	return agent, start + n, nil
}

// EncodeFlatRecord is the inverse of DecodeFlatRecord.
func EncodeFlatRecord(agents []AgentRecord) []float64 {
	size := 0
	for _, a := range agents {
		size += agentFixedFields + 1 + len(a.Subpoints)
	}

	out := make([]float64, 0, size)
	for _, a := range agents {
		out = append(out,
			float64(a.VisType), float64(a.TypeID),
			a.X, a.Y, a.Z,
			a.XRot, a.YRot, a.ZRot,
			a.CR, float64(len(a.Subpoints)))
		out = append(out, a.Subpoints...)
	}
	return out
}
