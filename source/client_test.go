package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trajstream/codec"
	"github.com/c360/trajstream/errors"
	"github.com/c360/trajstream/testutil"
)

func newClient(t *testing.T, model Model) *ClientSource {
	t.Helper()
	src, err := NewClientSource(model, WithTickInterval(5*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Abort() })
	return src
}

func TestClientSource_StreamPollsModel(t *testing.T) {
	model := testutil.NewMockModel(0.5)
	src := newClient(t, model)
	ctx := context.Background()

	info, err := src.Initialize(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, 0.5, info.TimeStepSize)

	require.NoError(t, src.Stream(ctx))
	ev := nextEvent(t, src, EventFrames)
	assert.Equal(t, "client", ev.Source)
	assert.Equal(t, "local", ev.FileName)
	assert.Equal(t, 0, ev.Frames[0].FrameNumber)
	assert.Equal(t, 0.0, ev.Frames[0].Time)

	ev = nextEvent(t, src, EventFrames)
	assert.Equal(t, 1, ev.Frames[0].FrameNumber)
	assert.Equal(t, 0.5, ev.Frames[0].Time)
	assert.Equal(t, testutil.Frame(1, 0).Agents, ev.Frames[0].Agents)
}

func TestClientSource_PauseRetainsPosition(t *testing.T) {
	src := newClient(t, testutil.NewMockModel(1))
	ctx := context.Background()
	_, err := src.Initialize(ctx, "local")
	require.NoError(t, err)

	require.NoError(t, src.Stream(ctx))
	got := collectFrames(t, src, 3)
	require.NoError(t, src.Pause(ctx))

	// Drain anything emitted before the pause took effect.
	last := got[len(got)-1]
	for {
		select {
		case ev := <-src.Events():
			last = ev.Frames[len(ev.Frames)-1].FrameNumber
			continue
		case <-time.After(30 * time.Millisecond):
		}
		break
	}

	require.NoError(t, src.Stream(ctx))
	ev := nextEvent(t, src, EventFrames)
	assert.Equal(t, last+1, ev.Frames[0].FrameNumber)
}

func TestClientSource_RequestFrame(t *testing.T) {
	src := newClient(t, testutil.NewMockModel(2))
	ctx := context.Background()
	_, err := src.Initialize(ctx, "local")
	require.NoError(t, err)

	require.NoError(t, src.RequestFrameByTime(ctx, 10))
	ev := nextEvent(t, src, EventFrames)
	assert.Equal(t, 5, ev.Frames[0].FrameNumber)
	assert.Equal(t, 10.0, ev.Frames[0].Time)

	require.NoError(t, src.Stream(ctx))
	ev = nextEvent(t, src, EventFrames)
	assert.Equal(t, 6, ev.Frames[0].FrameNumber, "streaming resumes after the requested frame")

	require.NoError(t, src.RequestFrame(ctx, -1))
	errEv := nextEvent(t, src, EventError)
	assert.ErrorIs(t, errEv.Err, ErrFrameNotFound)
}

func TestClientSource_ModelFailureSkipsFrame(t *testing.T) {
	model := testutil.NewMockModel(1)
	model.Fail(1)
	src := newClient(t, model)
	ctx := context.Background()
	_, err := src.Initialize(ctx, "local")
	require.NoError(t, err)

	require.NoError(t, src.Stream(ctx))
	errEv := nextEvent(t, src, EventError)
	assert.ErrorIs(t, errEv.Err, testutil.ErrInjected)

	ev := nextEvent(t, src, EventFrames)
	assert.Equal(t, 2, ev.Frames[0].FrameNumber)
}

type badModel struct{}

func (badModel) Info() codec.TrajectoryInfo      { return codec.TrajectoryInfo{TimeStepSize: 1} }
func (badModel) Update(int) ([]float64, error) { return []float64{1000, 0, 0, 0, 0, 0, 0, 0, 0, 5}, nil }

func TestClientSource_MalformedRecord(t *testing.T) {
	src := newClient(t, badModel{})
	ctx := context.Background()
	_, err := src.Initialize(ctx, "bad")
	require.NoError(t, err)

	require.NoError(t, src.RequestFrame(ctx, 0))
	ev := nextEvent(t, src, EventError)
	assert.True(t, errors.IsParse(ev.Err))
}

func TestClientSource_Abort(t *testing.T) {
	src := newClient(t, testutil.NewMockModel(1))
	ctx := context.Background()
	_, err := src.Initialize(ctx, "local")
	require.NoError(t, err)
	require.NoError(t, src.Stream(ctx))

	require.NoError(t, src.Abort())
	require.NoError(t, src.Abort())
	requireClosed(t, src)

	assert.ErrorIs(t, src.Stream(ctx), errors.ErrAborted)
	_, err = src.Initialize(ctx, "local")
	assert.ErrorIs(t, err, errors.ErrAborted)
}

func TestOrbitModel(t *testing.T) {
	model := NewOrbitModel(6)
	info := model.Info()
	assert.Equal(t, 1.0, info.TimeStepSize)
	assert.Len(t, info.TypeMapping, 3)

	values, err := model.Update(30)
	require.NoError(t, err)
	frame, err := codec.DecodeFlatRecord(values, 30, 30)
	require.NoError(t, err)
	require.Len(t, frame.Agents, 6)

	// A quarter revolution puts agent 0 on the y axis of its ring.
	a := frame.Agents[0]
	assert.InDelta(t, 0, a.X, 1e-9)
	assert.InDelta(t, 10, a.Y, 1e-9)
	assert.Equal(t, 1, frame.Agents[1].TypeID)

	again, err := model.Update(30)
	require.NoError(t, err)
	assert.Equal(t, values, again)
}

func TestNewClientSource_RequiresModel(t *testing.T) {
	_, err := NewClientSource(nil)
	assert.True(t, errors.IsInvalid(err))
}
