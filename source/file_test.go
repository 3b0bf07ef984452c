package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trajstream/errors"
	"github.com/c360/trajstream/testutil"
)

func newFile(t *testing.T, frames int, step float64) *FileSource {
	t.Helper()
	c := testutil.Container(t, testutil.Info(frames, step), testutil.Frames(frames, step))
	src, err := NewFileSource(c, WithTickInterval(2*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Abort() })
	return src
}

func TestFileSource_StreamSelfPauses(t *testing.T) {
	src := newFile(t, 5, 1)
	ctx := context.Background()

	info, err := src.Initialize(ctx, "five.simularium")
	require.NoError(t, err)
	assert.Equal(t, 5, info.TotalSteps)
	assert.Equal(t, 5, src.NumFrames())

	require.NoError(t, src.Stream(ctx))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, collectFrames(t, src, 5))

	ended := nextEvent(t, src, EventEnded)
	assert.Equal(t, "five.simularium", ended.FileName)

	assert.Eventually(t, func() bool { return !src.pacer.running() }, time.Second, 5*time.Millisecond)

	// No looping: streaming again at the end only reports the end.
	require.NoError(t, src.Stream(ctx))
	nextEvent(t, src, EventEnded)
}

func TestFileSource_RequestFrame(t *testing.T) {
	src := newFile(t, 10, 0.5)
	ctx := context.Background()
	_, err := src.Initialize(ctx, "ten")
	require.NoError(t, err)

	require.NoError(t, src.RequestFrame(ctx, 7))
	ev := nextEvent(t, src, EventFrames)
	assert.Equal(t, 7, ev.Frames[0].FrameNumber)

	require.NoError(t, src.RequestFrameByTime(ctx, 1.1))
	ev = nextEvent(t, src, EventFrames)
	assert.Equal(t, 2, ev.Frames[0].FrameNumber, "1.1 is within half a step of frame 2")

	require.NoError(t, src.Stream(ctx))
	ev = nextEvent(t, src, EventFrames)
	assert.Equal(t, 3, ev.Frames[0].FrameNumber)
}

func TestFileSource_RequestMissReportsNotFound(t *testing.T) {
	src := newFile(t, 4, 1)
	ctx := context.Background()
	_, err := src.Initialize(ctx, "four")
	require.NoError(t, err)

	require.NoError(t, src.RequestFrameByTime(ctx, 50))
	ev := nextEvent(t, src, EventError)
	assert.ErrorIs(t, ev.Err, ErrFrameNotFound)
	assert.True(t, errors.IsProtocol(ev.Err))

	require.NoError(t, src.RequestFrame(ctx, 4))
	ev = nextEvent(t, src, EventError)
	assert.ErrorIs(t, ev.Err, ErrFrameNotFound)
}

func TestFileSource_PauseAndAbort(t *testing.T) {
	src := newFile(t, 1000, 1)
	ctx := context.Background()
	_, err := src.Initialize(ctx, "long")
	require.NoError(t, err)

	require.NoError(t, src.Stream(ctx))
	collectFrames(t, src, 2)
	require.NoError(t, src.Pause(ctx))
	assert.False(t, src.pacer.running())

	require.NoError(t, src.Abort())
	require.NoError(t, src.Abort())
	requireClosed(t, src)
	assert.ErrorIs(t, src.RequestFrame(ctx, 1), errors.ErrAborted)
}

func TestNewFileSource_RequiresContainer(t *testing.T) {
	_, err := NewFileSource(nil)
	assert.True(t, errors.IsInvalid(err))
}
