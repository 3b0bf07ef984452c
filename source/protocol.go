package source

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/c360/trajstream/errors"
)

// MsgType tags every message exchanged with a remote simulator.
type MsgType int

// Message types.
const (
	MsgUndefined MsgType = iota
	MsgVisDataArrive
	MsgVisDataRequest
	MsgVisDataFinish
	MsgVisDataPause
	MsgVisDataResume
	MsgVisDataAbort
	MsgUpdateTimeStep
	MsgUpdateRateParam
	MsgModelDefinition
	MsgHeartbeatPing
	MsgHeartbeatPong
	MsgTrajectoryFileInfo
	MsgGotoSimulationTime
	MsgInitTrajectoryFile
	MsgUpdateSimulationState
	MsgConvertTrajectoryFile
	MsgHealthCheckRequest
	MsgHealthCheckResponse
	MsgErrorMessage
)

var msgTypeNames = [...]string{
	"undefined",
	"vis_data_arrive",
	"vis_data_request",
	"vis_data_finish",
	"vis_data_pause",
	"vis_data_resume",
	"vis_data_abort",
	"update_time_step",
	"update_rate_param",
	"model_definition",
	"heartbeat_ping",
	"heartbeat_pong",
	"trajectory_file_info",
	"goto_simulation_time",
	"init_trajectory_file",
	"update_simulation_state",
	"convert_trajectory_file",
	"health_check_request",
	"health_check_response",
	"error_message",
}

func (t MsgType) String() string {
	if t >= 0 && int(t) < len(msgTypeNames) {
		return msgTypeNames[t]
	}
	return fmt.Sprintf("msg_type(%d)", int(t))
}

// PlaybackMode selects what a vis-data request streams.
type PlaybackMode int

// Playback modes.
const (
	ModeLive PlaybackMode = iota
	ModePrecomputed
	ModeTrajectoryFile
)

// request is the outbound JSON envelope. Fields are omitted when unused by
// the message type.
type request struct {
	MsgType     MsgType         `json:"msgType"`
	FileName    string          `json:"fileName,omitempty"`
	Mode        *PlaybackMode   `json:"mode,omitempty"`
	FrameNumber *int            `json:"frameNumber,omitempty"`
	Time        *float64        `json:"time,omitempty"`
	TimeStep    *float64        `json:"timeStep,omitempty"`
	ParamName   string          `json:"paramName,omitempty"`
	ParamValue  *float64        `json:"paramValue,omitempty"`
	ConnID      string          `json:"connId,omitempty"`
	TrajType    string          `json:"trajType,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// envelope holds the fields common to inbound JSON messages.
type envelope struct {
	MsgType      MsgType `json:"msgType"`
	FileName     string  `json:"fileName"`
	ConnID       string  `json:"connId"`
	ErrorMessage string  `json:"errorMessage"`
}

func parseEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, errors.WrapProtocol(err, "remote", "parseEnvelope", "unmarshal message")
	}
	return env, nil
}

// binaryHeaderBytes is the float32 msgType and file name length.
const binaryHeaderBytes = 8

// parseBinaryMessage splits a binary message into its type, file name and
// payload. The file name is padded to a four-byte boundary.
func parseBinaryMessage(data []byte) (MsgType, string, []byte, error) {
	if len(data) < binaryHeaderBytes {
		return 0, "", nil, errors.WrapProtocol(fmt.Errorf("binary message of %d bytes", len(data)),
			"remote", "parseBinaryMessage", "read header")
	}

	msgType := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	nameLen := math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))
	if nameLen < 0 || float64(nameLen) > float64(len(data)) || nameLen != float32(math.Trunc(float64(nameLen))) {
		return 0, "", nil, errors.WrapProtocol(fmt.Errorf("invalid file name length %v", nameLen),
			"remote", "parseBinaryMessage", "read header")
	}

	n := int(nameLen)
	start := binaryHeaderBytes
	end := start + n
	payload := start + (n+3)&^3
	if payload > len(data) {
		return 0, "", nil, errors.WrapProtocol(fmt.Errorf("file name of %d bytes overruns message", n),
			"remote", "parseBinaryMessage", "read file name")
	}

	return MsgType(msgType), string(data[start:end]), data[payload:], nil
}
