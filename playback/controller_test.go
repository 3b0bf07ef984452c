package playback

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trajstream/codec"
	"github.com/c360/trajstream/errors"
	"github.com/c360/trajstream/metric"
	"github.com/c360/trajstream/pkg/cache"
	"github.com/c360/trajstream/source"
	"github.com/c360/trajstream/testutil"
)

const waitFor = 2 * time.Second

// scriptedSource is a Source whose events are pushed by the test.
type scriptedSource struct {
	name   string
	info   codec.TrajectoryInfo
	events chan source.Event

	mu      sync.Mutex
	calls   []string
	initErr error
	late    []codec.Frame
	once    sync.Once
}

func newScriptedSource(name string, info codec.TrajectoryInfo) *scriptedSource {
	return &scriptedSource{name: name, info: info, events: make(chan source.Event, 16)}
}

func (s *scriptedSource) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *scriptedSource) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *scriptedSource) Initialize(_ context.Context, name string) (codec.TrajectoryInfo, error) {
	s.record("init:" + name)
	return s.info, s.initErr
}

func (s *scriptedSource) Stream(context.Context) error { s.record("stream"); return nil }
func (s *scriptedSource) Pause(context.Context) error  { s.record("pause"); return nil }

func (s *scriptedSource) RequestFrame(_ context.Context, n int) error {
	s.record(fmt.Sprintf("frame:%d", n))
	return nil
}

func (s *scriptedSource) RequestFrameByTime(_ context.Context, t float64) error {
	s.record(fmt.Sprintf("time:%g", t))
	return nil
}

// Abort delivers any late frames before closing, as a network source might.
func (s *scriptedSource) Abort() error {
	s.record("abort")
	s.once.Do(func() {
		late := s.late
		go func() {
			for _, f := range late {
				s.events <- source.Event{Kind: source.EventFrames, Source: s.name, Frames: []codec.Frame{f}}
			}
			close(s.events)
		}()
	})
	return nil
}

func (s *scriptedSource) Events() <-chan source.Event { return s.events }
func (s *scriptedSource) Name() string                { return s.name }

func (s *scriptedSource) push(frames ...codec.Frame) {
	s.events <- source.Event{Kind: source.EventFrames, Source: s.name, Frames: frames}
}

func (s *scriptedSource) pushErr(err error) {
	s.events <- source.Event{Kind: source.EventError, Source: s.name, Err: err}
}

// errorLog collects errors passed to the error handler.
type errorLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorLog) handle(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *errorLog) all() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

func newCache(t *testing.T) *cache.FrameCache {
	t.Helper()
	c, err := cache.New(cache.DefaultConfig())
	require.NoError(t, err)
	return c
}

func newController(t *testing.T, src source.Source, opts ...Option) *Controller {
	t.Helper()
	ctrl, err := New(src, newCache(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })
	return ctrl
}

func connected(t *testing.T, src source.Source, opts ...Option) *Controller {
	t.Helper()
	ctrl := newController(t, src, opts...)
	require.NoError(t, ctrl.Connect(context.Background(), "traj.simularium"))
	return ctrl
}

func TestController_GotoTimeThenStream(t *testing.T) {
	frames := testutil.Frames(100, 1)
	container := testutil.Container(t, testutil.Info(100, 1), frames)
	src, err := source.NewFileSource(container, source.WithTickInterval(time.Millisecond))
	require.NoError(t, err)

	ctrl := connected(t, src)
	assert.Equal(t, 100.0, ctrl.TrajectoryInfo().TotalDuration())
	assert.Equal(t, StateInitializing, ctrl.State())

	ctx := context.Background()
	require.NoError(t, ctrl.GotoTime(ctx, 2))
	require.Eventually(t, func() bool { return !ctrl.Seeking() }, waitFor, time.Millisecond)

	require.NoError(t, ctrl.Start(ctx))
	assert.Equal(t, StateStreaming, ctrl.State())
	assert.Equal(t, 2.0, ctrl.CurrentTime())

	// The cache fills ahead of the playhead from frame 3 on.
	require.Eventually(t, func() bool { return ctrl.Cache().ContainsFrameAtFrameNumber(6) }, waitFor, time.Millisecond)
	next, ok := ctrl.NextFrame()
	require.True(t, ok)
	assert.Equal(t, 3, next.FrameNumber)
	assert.Equal(t, 3.0, ctrl.CurrentTime())
}

func TestController_FileSourceEndPauses(t *testing.T) {
	container := testutil.Container(t, testutil.Info(5, 1), testutil.Frames(5, 1))
	src, err := source.NewFileSource(container, source.WithTickInterval(time.Millisecond))
	require.NoError(t, err)

	ctrl := connected(t, src)
	require.NoError(t, ctrl.Start(context.Background()))

	require.Eventually(t, func() bool { return ctrl.State() == StatePaused }, waitFor, time.Millisecond)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ctrl.Cache().FrameNumbers())
	assert.Equal(t, 0, ctrl.Cache().GetFirstFrameNumber())
}

func TestController_CacheHitServesWithoutSource(t *testing.T) {
	src := newScriptedSource("scripted", testutil.Info(10, 1))
	ctrl := connected(t, src)

	src.push(testutil.Frames(5, 1)...)
	require.Eventually(t, func() bool { return ctrl.Cache().NumFrames() == 5 }, waitFor, time.Millisecond)

	ctx := context.Background()
	require.NoError(t, ctrl.GotoTime(ctx, 3))
	assert.False(t, ctrl.Seeking())
	assert.Equal(t, 3.0, ctrl.CurrentTime())

	require.NoError(t, ctrl.GotoFrame(ctx, 1))
	frame, ok := ctrl.CurrentFrame()
	require.True(t, ok)
	assert.Equal(t, 1, frame.FrameNumber)

	assert.Equal(t, []string{"init:traj.simularium"}, src.Calls())
	assert.Equal(t, 5, ctrl.Cache().NumFrames(), "a cache hit keeps the cache")
}

func TestController_SeekLatch(t *testing.T) {
	src := newScriptedSource("scripted", testutil.Info(100, 1))
	ctrl := connected(t, src)
	ctx := context.Background()

	src.push(testutil.Frames(3, 1)...)
	require.Eventually(t, func() bool { return ctrl.Cache().NumFrames() == 3 }, waitFor, time.Millisecond)

	require.NoError(t, ctrl.GotoFrame(ctx, 50))
	assert.True(t, ctrl.Seeking())
	assert.True(t, ctrl.Cache().IsEmpty(), "a miss clears the cache")

	// A second seek replaces the first target.
	require.NoError(t, ctrl.GotoTime(ctx, 70))
	assert.Equal(t, []string{"init:traj.simularium", "frame:50", "time:70"}, src.Calls())

	_, ok := ctrl.NextFrame()
	assert.False(t, ok, "playhead is held while seeking")

	src.push(testutil.Frame(50, 50))
	src.push(testutil.Frame(70, 70))
	require.Eventually(t, func() bool { return !ctrl.Seeking() }, waitFor, time.Millisecond)
	assert.Equal(t, 70.0, ctrl.CurrentTime())
	assert.False(t, ctrl.Cache().ContainsFrameAtFrameNumber(50), "the abandoned target is not cached")
	assert.Equal(t, 1, ctrl.Cache().NumFrames())
}

func TestController_SeekDropsFramesBeforeTarget(t *testing.T) {
	var arrived []int
	var mu sync.Mutex
	src := newScriptedSource("scripted", testutil.Info(100, 1))
	ctrl := connected(t, src, WithFrameHandler(func(f codec.Frame) {
		mu.Lock()
		defer mu.Unlock()
		arrived = append(arrived, f.FrameNumber)
	}))
	ctx := context.Background()

	require.NoError(t, ctrl.GotoFrame(ctx, 2))

	// frames streamed before the seek was issued, then the target and its successor
	src.push(testutil.Frame(50, 50), testutil.Frame(51, 51))
	src.push(testutil.Frame(2, 2), testutil.Frame(3, 3))
	require.Eventually(t, func() bool { return ctrl.Cache().ContainsFrameAtFrameNumber(3) }, waitFor, time.Millisecond)

	assert.False(t, ctrl.Seeking())
	assert.Equal(t, 2.0, ctrl.CurrentTime())
	assert.False(t, ctrl.Cache().ContainsFrameAtFrameNumber(50))
	assert.False(t, ctrl.Cache().ContainsFrameAtFrameNumber(51))
	assert.Equal(t, 2, ctrl.Cache().NumFrames())

	next, ok := ctrl.NextFrame()
	require.True(t, ok)
	assert.Equal(t, 3, next.FrameNumber, "the playhead continues from the seek target")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 3}, arrived)
}

func TestController_SeekNotFoundReleasesLatch(t *testing.T) {
	var log errorLog
	src := newScriptedSource("scripted", testutil.Info(10, 1))
	ctrl := connected(t, src, WithErrorHandler(log.handle))

	require.NoError(t, ctrl.GotoTime(context.Background(), 500))
	require.True(t, ctrl.Seeking())

	src.pushErr(errors.WrapProtocol(source.ErrFrameNotFound, "test", "seek", "locate frame"))
	require.Eventually(t, func() bool { return !ctrl.Seeking() }, waitFor, time.Millisecond)

	require.Len(t, log.all(), 1)
	assert.ErrorIs(t, log.all()[0], source.ErrFrameNotFound)
}

func TestController_SeekTimeout(t *testing.T) {
	var log errorLog
	src := newScriptedSource("scripted", testutil.Info(10, 1))
	ctrl := connected(t, src, WithErrorHandler(log.handle), WithSeekTimeout(20*time.Millisecond))

	require.NoError(t, ctrl.GotoFrame(context.Background(), 9))
	require.Eventually(t, func() bool { return !ctrl.Seeking() }, waitFor, time.Millisecond)

	require.Len(t, log.all(), 1)
	assert.ErrorIs(t, log.all()[0], ErrSeekTimeout)
	assert.True(t, errors.IsTransient(log.all()[0]))
}

func TestController_ErrorsDoNotStopPlayback(t *testing.T) {
	var log errorLog
	src := newScriptedSource("scripted", testutil.Info(10, 1))
	ctrl := connected(t, src, WithErrorHandler(log.handle))
	require.NoError(t, ctrl.Start(context.Background()))

	src.pushErr(errors.WrapParse(codec.ErrSubpointCount, "test", "decode", "decode frame"))
	src.push(testutil.Frame(0, 0))

	require.Eventually(t, func() bool { return ctrl.Cache().NumFrames() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, StateStreaming, ctrl.State())
	require.Len(t, log.all(), 1)
	assert.True(t, errors.IsParse(log.all()[0]))
}

func TestController_ChangeSourceIgnoresLateEvents(t *testing.T) {
	old := newScriptedSource("old", testutil.Info(10, 1))
	old.late = testutil.Frames(3, 1)
	ctrl := connected(t, old)
	old.push(testutil.Frame(0, 0))
	require.Eventually(t, func() bool { return ctrl.Cache().NumFrames() == 1 }, waitFor, time.Millisecond)

	next := newScriptedSource("next", testutil.Info(4, 0.5))
	require.NoError(t, ctrl.ChangeSource(next))
	assert.Equal(t, StateIdle, ctrl.State())
	assert.Equal(t, next, ctrl.Source())
	assert.Contains(t, old.Calls(), "abort")

	// Give the late frames time to be ignored.
	time.Sleep(20 * time.Millisecond)
	assert.True(t, ctrl.Cache().IsEmpty())
	_, ok := ctrl.CurrentFrame()
	assert.False(t, ok)

	require.NoError(t, ctrl.Connect(context.Background(), "next.simularium"))
	assert.Equal(t, 0.5, ctrl.TrajectoryInfo().TimeStepSize)
	assert.Equal(t, "next.simularium", ctrl.FileName())
}

func TestController_StateTransitions(t *testing.T) {
	src := newScriptedSource("scripted", testutil.Info(10, 1))
	ctrl := newController(t, src)
	ctx := context.Background()

	err := ctrl.Start(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, ctrl.Pause(ctx), ErrInvalidState)
	assert.ErrorIs(t, ctrl.GotoTime(ctx, 1), ErrInvalidState)

	require.NoError(t, ctrl.Connect(ctx, "a"))
	assert.ErrorIs(t, ctrl.Connect(ctx, "b"), ErrInvalidState)

	require.NoError(t, ctrl.Start(ctx))
	require.NoError(t, ctrl.Start(ctx))
	require.NoError(t, ctrl.Pause(ctx))
	assert.Equal(t, StatePaused, ctrl.State())
	require.NoError(t, ctrl.Resume(ctx))
	assert.Equal(t, StateStreaming, ctrl.State())

	assert.Equal(t, []string{"init:a", "stream", "pause", "stream"}, src.Calls())

	require.NoError(t, ctrl.Close())
	require.NoError(t, ctrl.Close())
	assert.ErrorIs(t, ctrl.Start(ctx), errors.ErrShuttingDown)
}

func TestController_InitializeFailure(t *testing.T) {
	var log errorLog
	src := newScriptedSource("scripted", codec.TrajectoryInfo{})
	src.initErr = errors.WrapProtocol(fmt.Errorf("unknown file"), "test", "Initialize", "load")
	ctrl := newController(t, src, WithErrorHandler(log.handle))

	err := ctrl.Connect(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsProtocol(err))
	assert.Equal(t, StateIdle, ctrl.State())
	assert.Len(t, log.all(), 1)
}

func TestController_Bypass(t *testing.T) {
	frames, err := cache.New(cache.Config{Enabled: false})
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []int
	src := newScriptedSource("scripted", testutil.Info(10, 1))
	ctrl, err := New(src, frames, WithFrameHandler(func(f codec.Frame) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, f.FrameNumber)
	}))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.Connect(context.Background(), "a"))
	src.push(testutil.Frame(0, 0), testutil.Frame(1, 1))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, waitFor, time.Millisecond)

	frame, ok := ctrl.NextFrame()
	require.True(t, ok)
	assert.Equal(t, 1, frame.FrameNumber)
	assert.True(t, frames.IsEmpty())
}

func TestController_RemoteSource(t *testing.T) {
	var log errorLog
	sim := testutil.NewFakeSimulator(t, testutil.Info(10, 1), testutil.Frames(10, 1))
	sim.UseBinary(true)
	src, err := source.NewRemoteSource(sim.URL())
	require.NoError(t, err)

	ctrl := connected(t, src, WithErrorHandler(log.handle))
	ctx := context.Background()
	require.NoError(t, ctrl.Start(ctx))

	require.Eventually(t, func() bool { return ctrl.State() == StatePaused }, waitFor, time.Millisecond)
	assert.Equal(t, 10, ctrl.Cache().NumFrames())

	require.NoError(t, ctrl.GotoTime(ctx, 4))
	assert.False(t, ctrl.Seeking())
	assert.Equal(t, 4.0, ctrl.CurrentTime())
	assert.Empty(t, log.all())
}

func TestController_RemoteConnectFailure(t *testing.T) {
	var log errorLog
	sim := testutil.NewFakeSimulator(t, testutil.Info(1, 1), nil)
	url := sim.URL()
	sim.Close()

	src, err := source.NewRemoteSource(url)
	require.NoError(t, err)
	ctrl := newController(t, src, WithErrorHandler(log.handle))

	err = ctrl.Connect(context.Background(), "a")
	require.Error(t, err)
	assert.True(t, errors.IsConnection(err))
	assert.Equal(t, StateIdle, ctrl.State())
	require.Len(t, log.all(), 1)
	assert.True(t, errors.IsConnection(log.all()[0]))
}

func TestController_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	src := newScriptedSource("scripted", testutil.Info(10, 1))
	ctrl := connected(t, src, WithMetrics(registry))
	require.NoError(t, ctrl.Start(context.Background()))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "trajstream_playback_state" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "controller" && l.GetValue() == ctrl.ID() {
					assert.Equal(t, float64(StateStreaming), m.GetGauge().GetValue())
					return
				}
			}
		}
	}
	t.Fatal("playback state gauge not found")
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, newCache(t))
	assert.True(t, errors.IsInvalid(err))
	_, err = New(newScriptedSource("s", codec.TrajectoryInfo{}), nil)
	assert.True(t, errors.IsInvalid(err))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "aborting", StateAborting.String())
	assert.Equal(t, "unknown", State(42).String())
}
