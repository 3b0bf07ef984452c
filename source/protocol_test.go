package source

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trajstream/codec"
	"github.com/c360/trajstream/errors"
	"github.com/c360/trajstream/testutil"
)

func TestMsgType_WireValues(t *testing.T) {
	assert.Equal(t, 1, int(MsgVisDataArrive))
	assert.Equal(t, 12, int(MsgTrajectoryFileInfo))
	assert.Equal(t, 14, int(MsgInitTrajectoryFile))
	assert.Equal(t, 19, int(MsgErrorMessage))
	assert.Equal(t, "goto_simulation_time", MsgGotoSimulationTime.String())
	assert.Equal(t, "msg_type(42)", MsgType(42).String())
}

func TestRequest_OmitsUnusedFields(t *testing.T) {
	raw, err := json.Marshal(request{MsgType: MsgVisDataPause, FileName: "a.bin"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"msgType":4,"fileName":"a.bin"}`, string(raw))

	n, mode := 0, ModeTrajectoryFile
	raw, err = json.Marshal(request{MsgType: MsgVisDataRequest, FileName: "a.bin", Mode: &mode, FrameNumber: &n})
	require.NoError(t, err)
	assert.JSONEq(t, `{"msgType":2,"fileName":"a.bin","mode":2,"frameNumber":0}`, string(raw))
}

func TestParseBinaryMessage(t *testing.T) {
	frames := testutil.Frames(3, 0.5)

	for _, name := range []string{"", "a", "abcd", "trajectory.simularium"} {
		t.Run(name, func(t *testing.T) {
			msgType, fileName, payload, err := parseBinaryMessage(testutil.BinaryFrameMessage(name, frames))
			require.NoError(t, err)
			assert.Equal(t, MsgVisDataArrive, msgType)
			assert.Equal(t, name, fileName)

			decoded, err := codec.DecodeBinaryFrames(payload)
			require.NoError(t, err)
			assert.Equal(t, frames, decoded)
		})
	}
}

func TestParseBinaryMessage_Malformed(t *testing.T) {
	_, _, _, err := parseBinaryMessage([]byte{1, 2, 3})
	assert.True(t, errors.IsProtocol(err))

	msg := make([]byte, 12)
	binary.LittleEndian.PutUint32(msg[0:4], math.Float32bits(1))
	binary.LittleEndian.PutUint32(msg[4:8], math.Float32bits(9))
	_, _, _, err = parseBinaryMessage(msg)
	assert.True(t, errors.IsProtocol(err), "file name overruns message")

	binary.LittleEndian.PutUint32(msg[4:8], math.Float32bits(1.5))
	_, _, _, err = parseBinaryMessage(msg)
	assert.True(t, errors.IsProtocol(err), "fractional length")
}
