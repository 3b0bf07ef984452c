package playback

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/trajstream/codec"
	"github.com/c360/trajstream/errors"
	"github.com/c360/trajstream/metric"
	"github.com/c360/trajstream/pkg/cache"
	"github.com/c360/trajstream/source"
)

// Controller errors
var (
	ErrInvalidState = stderrors.New("operation not valid in current state")
	ErrSeekTimeout  = stderrors.New("seek not answered in time")
)

// seek is the single outstanding out-of-band request.
type seek struct {
	id      uint64
	byTime  bool
	time    float64
	frame   int
	started time.Time
	timer   *time.Timer
}

func (s *seek) matches(f codec.Frame, tol float64) bool {
	if s.byTime {
		return codec.TimesMatch(f.Time, s.time, tol)
	}
	return f.FrameNumber == s.frame
}

func (s *seek) String() string {
	if s.byTime {
		return fmt.Sprintf("time %g", s.time)
	}
	return fmt.Sprintf("frame %d", s.frame)
}

// Controller drives one Source at a time and keeps its frames in a
// FrameCache. Seeks are served from the cache when possible and otherwise
// requested from the source, with at most one request outstanding.
//
// Every operation and every source event runs under the controller lock.
// Handlers are invoked after the lock is released.
type Controller struct {
	id          string
	cache       *cache.FrameCache
	logger      *slog.Logger
	metrics     *metric.Metrics
	onError     ErrorHandler
	onFrame     FrameHandler
	seekTimeout time.Duration

	mu         sync.Mutex
	src        source.Source
	generation uint64
	state      State
	info       codec.TrajectoryInfo
	fileName   string
	current    codec.Frame
	hasCurrent bool
	pending    *seek
	seekSeq    uint64
	closed     bool

	pumps sync.WaitGroup
}

// New creates a controller for src backed by frames.
func New(src source.Source, frames *cache.FrameCache, opts ...Option) (*Controller, error) {
	if src == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "playback", "New", "validate source")
	}
	if frames == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "playback", "New", "validate cache")
	}

	c := &Controller{
		id:     uuid.NewString(),
		cache:  frames,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = c.logger.With("component", "playback", "controller", c.id)

	c.mu.Lock()
	c.installLocked(src)
	c.mu.Unlock()
	return c, nil
}

// ID identifies the controller in logs and metrics.
func (c *Controller) ID() string { return c.id }

// Cache returns the controller's frame cache.
func (c *Controller) Cache() *cache.FrameCache { return c.cache }

// Connect connects the current source if it needs a connection, then
// initializes fileName. Failures are reported to the error handler as well
// as returned, and leave the controller Idle.
func (c *Controller) Connect(ctx context.Context, fileName string) error {
	c.mu.Lock()
	if err := c.checkLocked("Connect", StateIdle); err != nil {
		c.mu.Unlock()
		return err
	}
	src, gen := c.src, c.generation
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if conn, ok := src.(source.Connector); ok {
		if err := conn.Connect(ctx); err != nil {
			return c.connectFailed(gen, errors.Wrap(err, "playback", "Connect", "connect source"))
		}
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAborted, "playback", "Connect", "source replaced")
	}
	c.setStateLocked(StateInitializing)
	c.mu.Unlock()

	info, err := src.Initialize(ctx, fileName)
	if err != nil {
		return c.connectFailed(gen, errors.Wrap(err, "playback", "Connect", "initialize "+fileName))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return errors.WrapInvalid(errors.ErrAborted, "playback", "Connect", "source replaced")
	}
	c.info = info
	c.fileName = fileName
	c.cache.SetTimeStep(info.TimeStepSize)
	c.logger.Info("Trajectory initialized",
		"file", fileName, "source", src.Name(),
		"total_steps", info.TotalSteps, "time_step", info.TimeStepSize)
	return nil
}

func (c *Controller) connectFailed(gen uint64, err error) error {
	c.mu.Lock()
	if gen == c.generation {
		c.setStateLocked(StateIdle)
	}
	c.mu.Unlock()

	c.logger.Error("Connect failed", "error", err)
	c.reportError(err)
	return err
}

// Start begins streaming after Connect, or resumes after Pause.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStreaming {
		return nil
	}
	if err := c.checkLocked("Start", StateInitializing, StatePaused); err != nil {
		return err
	}
	if err := c.src.Stream(ctx); err != nil {
		return errors.Wrap(err, "playback", "Start", "stream source")
	}
	c.setStateLocked(StateStreaming)
	return nil
}

// Resume is Start after a Pause.
func (c *Controller) Resume(ctx context.Context) error {
	return c.Start(ctx)
}

// Pause stops the source. The cache keeps its frames.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StatePaused {
		return nil
	}
	if err := c.checkLocked("Pause", StateStreaming); err != nil {
		return err
	}
	if err := c.src.Pause(ctx); err != nil {
		return errors.Wrap(err, "playback", "Pause", "pause source")
	}
	c.setStateLocked(StatePaused)
	return nil
}

// GotoTime moves the playhead to simulation time t. A cached frame is
// served at once; otherwise the cache is cleared, the frame is requested
// from the source and NextFrame waits until it arrives. A later seek
// replaces an unanswered one.
func (c *Controller) GotoTime(ctx context.Context, t float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked("GotoTime", StateInitializing, StateStreaming, StatePaused); err != nil {
		return err
	}
	if frame, ok := c.cache.GetFrameAtTime(t); ok {
		c.serveCachedLocked(frame)
		return nil
	}

	s := c.beginSeekLocked(&seek{byTime: true, time: t})
	if err := c.src.RequestFrameByTime(ctx, t); err != nil {
		c.endSeekLocked(s, "error")
		return errors.Wrap(err, "playback", "GotoTime", "request frame")
	}
	return nil
}

// GotoFrame moves the playhead to frame n, like GotoTime.
func (c *Controller) GotoFrame(ctx context.Context, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked("GotoFrame", StateInitializing, StateStreaming, StatePaused); err != nil {
		return err
	}
	if frame, ok := c.cache.GetFrameAtFrameNumber(n); ok {
		c.serveCachedLocked(frame)
		return nil
	}

	s := c.beginSeekLocked(&seek{frame: n})
	if err := c.src.RequestFrame(ctx, n); err != nil {
		c.endSeekLocked(s, "error")
		return errors.Wrap(err, "playback", "GotoFrame", "request frame")
	}
	return nil
}

func (c *Controller) serveCachedLocked(frame codec.Frame) {
	if c.pending != nil {
		c.endSeekLocked(c.pending, "superseded")
	}
	c.current, c.hasCurrent = frame, true
	if c.metrics != nil {
		c.metrics.RecordSeek(c.id, "cache", 0)
	}
}

func (c *Controller) beginSeekLocked(s *seek) *seek {
	if c.pending != nil {
		c.logger.Debug("Seek replaces pending request", "pending", c.pending.String(), "target", s.String())
		c.endSeekLocked(c.pending, "superseded")
	}
	c.cache.Clear()

	c.seekSeq++
	s.id = c.seekSeq
	s.started = time.Now()
	if c.seekTimeout > 0 {
		id := s.id
		s.timer = time.AfterFunc(c.seekTimeout, func() { c.expireSeek(id) })
	}
	c.pending = s
	return s
}

func (c *Controller) endSeekLocked(s *seek, result string) {
	if s.timer != nil {
		s.timer.Stop()
	}
	if c.pending == s {
		c.pending = nil
	}
	if c.metrics != nil {
		c.metrics.RecordSeek(c.id, result, time.Since(s.started))
	}
}

func (c *Controller) expireSeek(id uint64) {
	c.mu.Lock()
	s := c.pending
	if s == nil || s.id != id {
		c.mu.Unlock()
		return
	}
	c.endSeekLocked(s, "timeout")
	err := errors.WrapTransient(fmt.Errorf("%w: %s after %s", ErrSeekTimeout, s, c.seekTimeout),
		"playback", "expireSeek", "await frame")
	c.mu.Unlock()

	c.logger.Warn("Seek abandoned", "target", s.String(), "timeout", c.seekTimeout)
	c.reportError(err)
}

// ChangeSource aborts the current source, clears the cache and installs
// src. The controller returns to Idle; events still in flight from the old
// source are ignored.
func (c *Controller) ChangeSource(src source.Source) error {
	if src == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "playback", "ChangeSource", "validate source")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.WrapInvalid(errors.ErrShuttingDown, "playback", "ChangeSource", "check controller")
	}

	c.setStateLocked(StateAborting)
	err := c.abortLocked()
	c.installLocked(src)
	c.setStateLocked(StateIdle)
	c.logger.Info("Source changed", "source", src.Name())

	if err != nil {
		return errors.Wrap(err, "playback", "ChangeSource", "abort previous source")
	}
	return nil
}

// NextFrame advances the playhead to the next cached frame. It reports
// false while a seek is outstanding or when the cache holds nothing newer.
// With the cache disabled it returns the most recently arrived frame.
func (c *Controller) NextFrame() (codec.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		return codec.Frame{}, false
	}
	if !c.cache.CacheEnabled() {
		return c.current, c.hasCurrent
	}

	var frame codec.Frame
	var ok bool
	if c.hasCurrent {
		frame, ok = c.cache.NextFrame(c.current.FrameNumber)
	} else {
		frame, ok = c.cache.GetFirstFrame()
	}
	if ok {
		c.current, c.hasCurrent = frame, true
	}
	return frame, ok
}

// CurrentTime returns the simulation time of the playhead, or 0 before the
// first frame.
func (c *Controller) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasCurrent {
		return 0
	}
	return c.current.Time
}

// CurrentFrame returns the frame under the playhead.
func (c *Controller) CurrentFrame() (codec.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.hasCurrent
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Seeking reports whether a seek is waiting for the source.
func (c *Controller) Seeking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// TrajectoryInfo returns the metadata of the initialized trajectory.
func (c *Controller) TrajectoryInfo() codec.TrajectoryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// FileName returns the initialized trajectory name.
func (c *Controller) FileName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileName
}

// Source returns the installed source.
func (c *Controller) Source() source.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src
}

// Close aborts the source and waits for its events to drain.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.setStateLocked(StateAborting)
	err := c.abortLocked()
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	c.pumps.Wait()
	if err != nil {
		return errors.Wrap(err, "playback", "Close", "abort source")
	}
	return nil
}

func (c *Controller) checkLocked(op string, allowed ...State) error {
	if c.closed {
		return errors.WrapInvalid(errors.ErrShuttingDown, "playback", op, "check controller")
	}
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s while %s", ErrInvalidState, op, c.state),
		"playback", op, "check state")
}

func (c *Controller) setStateLocked(s State) {
	if c.state != s {
		c.logger.Debug("State change", "from", c.state.String(), "to", s.String())
	}
	c.state = s
	if c.metrics != nil {
		c.metrics.RecordPlaybackState(c.id, int(s))
	}
}

// abortLocked retires the current source. Its pump keeps draining until
// the event channel closes but no longer affects the controller.
func (c *Controller) abortLocked() error {
	c.generation++
	if c.pending != nil {
		c.endSeekLocked(c.pending, "aborted")
	}
	err := c.src.Abort()

	c.cache.Clear()
	c.info = codec.TrajectoryInfo{}
	c.fileName = ""
	c.current, c.hasCurrent = codec.Frame{}, false
	return err
}

func (c *Controller) installLocked(src source.Source) {
	c.generation++
	c.src = src
	gen := c.generation

	c.pumps.Add(1)
	go c.pump(gen, src)
}

// pump forwards events of one source until its channel closes.
func (c *Controller) pump(gen uint64, src source.Source) {
	defer c.pumps.Done()
	for ev := range src.Events() {
		c.handleEvent(gen, ev)
	}
}

func (c *Controller) handleEvent(gen uint64, ev source.Event) {
	var errs []error
	var arrived []codec.Frame

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("Ignoring event from retired source", "source", ev.Source, "kind", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case source.EventFrames:
		for _, frame := range ev.Frames {
			if !c.frameArrivedLocked(frame) {
				c.logger.Debug("Dropping frame while seeking",
					"frame", frame.FrameNumber, "time", frame.Time, "target", c.pending.String())
				continue
			}
			if err := c.cache.AddFrame(frame); err != nil {
				errs = append(errs, err)
			}
			arrived = append(arrived, frame)
		}

	case source.EventEnded:
		c.logger.Debug("Source reached end of trajectory", "file", ev.FileName)
		if c.state == StateStreaming {
			c.setStateLocked(StatePaused)
		}

	case source.EventError:
		if c.pending != nil && stderrors.Is(ev.Err, source.ErrFrameNotFound) {
			c.logger.Debug("Seek target not available", "target", c.pending.String())
			c.endSeekLocked(c.pending, "not_found")
		}
		if c.metrics != nil {
			c.metrics.RecordError("playback", errorKind(ev.Err))
		}
		errs = append(errs, ev.Err)
	}
	c.mu.Unlock()

	if c.onFrame != nil {
		for _, frame := range arrived {
			c.onFrame(frame)
		}
	}
	for _, err := range errs {
		c.reportError(err)
	}
}

// frameArrivedLocked resolves the pending seek when its frame arrives and
// reports whether the frame may be cached. Frames that do not answer a
// pending seek are rejected so the cache restarts at the seek target. In
// bypass mode the newest frame becomes the playhead.
func (c *Controller) frameArrivedLocked(frame codec.Frame) bool {
	if c.pending != nil {
		if !c.pending.matches(frame, c.info.TimeTolerance()) {
			return false
		}
		c.endSeekLocked(c.pending, "source")
		c.current, c.hasCurrent = frame, true
		return true
	}
	if !c.cache.CacheEnabled() {
		c.current, c.hasCurrent = frame, true
	}
	return true
}

func (c *Controller) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
		return
	}
	c.logger.Warn("Unhandled playback error", "error", err)
}

func errorKind(err error) string {
	switch {
	case errors.IsConnection(err):
		return "connection"
	case errors.IsProtocol(err):
		return "protocol"
	case errors.IsParse(err):
		return "parse"
	case errors.IsFormat(err):
		return "format"
	case errors.IsCacheConsistency(err):
		return "cache_consistency"
	default:
		return "other"
	}
}
