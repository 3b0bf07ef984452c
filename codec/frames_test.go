package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trajstream/errors"
)

func TestBinaryFrames(t *testing.T) {
	frames := sampleFrames(5, 0.25)
	payload := EncodeBinaryFrames(frames)

	bf, err := ParseBinaryFrames(payload)
	require.NoError(t, err)
	require.Equal(t, 5, bf.NumFrames())

	h, err := bf.Header(3)
	require.NoError(t, err)
	assert.Equal(t, FrameHeader{FrameNumber: 3, Time: 0.75}, h)

	f, err := bf.Frame(3)
	require.NoError(t, err)
	assert.Equal(t, frames[3], f)
	assert.Equal(t, frames[3].Size(), f.Size())

	_, err = bf.Frame(5)
	assert.Error(t, err)
}

func TestDecodeBinaryFrames_EmptyPayload(t *testing.T) {
	frames, err := DecodeBinaryFrames(nil)
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = DecodeBinaryFrames(EncodeBinaryFrames(nil))
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestParseBinaryFrames_BadIndex(t *testing.T) {
	payload := EncodeBinaryFrames(sampleFrames(2, 1))
	binary.LittleEndian.PutUint32(payload[4:], 1000)

	_, err := ParseBinaryFrames(payload)
	require.Error(t, err)
	assert.True(t, errors.IsFormat(err))

	_, err = ParseBinaryFrames([]byte{1, 0, 0})
	assert.True(t, errors.IsFormat(err))
}

func TestBinaryFrames_AgentCountMismatch(t *testing.T) {
	payload := EncodeBinaryFrames(sampleFrames(2, 1))
	bf, err := ParseBinaryFrames(payload)
	require.NoError(t, err)

	// corrupt the agent count of frame 1 only
	binary.LittleEndian.PutUint32(payload[bf.offsets[1]+8:], 7)

	_, err = bf.Frame(0)
	require.NoError(t, err)

	_, err = bf.Frame(1)
	require.Error(t, err)
	assert.True(t, errors.IsParse(err))
	assert.ErrorIs(t, err, ErrAgentCount)
}

func TestIndexOfFrameNumberAndTime(t *testing.T) {
	bf, err := ParseBinaryFrames(EncodeBinaryFrames(sampleFrames(10, 1)))
	require.NoError(t, err)

	idx, ok := IndexOfFrameNumber(bf, 7)
	assert.True(t, ok)
	assert.Equal(t, 7, idx)

	_, ok = IndexOfFrameNumber(bf, 10)
	assert.False(t, ok)

	idx, ok = IndexOfTime(bf, 2, TimeTolerance(1))
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	idx, ok = IndexOfTime(bf, 4.4, TimeTolerance(1))
	assert.True(t, ok)
	assert.Equal(t, 4, idx)

	_, ok = IndexOfTime(bf, 20, TimeTolerance(1))
	assert.False(t, ok)

	numbers, err := FrameNumbers(bf)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, numbers)

	numbers, err = FrameNumbers(BundleFrames(nil))
	require.NoError(t, err)
	assert.Empty(t, numbers)
}

func TestTrajectoryInfo_Durations(t *testing.T) {
	info := TrajectoryInfo{TimeStepSize: 1, TotalSteps: 100}
	assert.Equal(t, 100.0, info.TotalDuration())
	assert.Equal(t, 0.5, info.TimeTolerance())
	assert.Equal(t, 1e-6, TimeTolerance(0))
	assert.True(t, TimesMatch(2, 2.0000001, 1e-6))
}
