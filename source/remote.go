package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/trajstream/codec"
	"github.com/c360/trajstream/errors"
	"github.com/c360/trajstream/metric"
	"github.com/c360/trajstream/pkg/buffer"
)

// inbound is a raw websocket message waiting to be decoded.
type inbound struct {
	binary bool
	data   []byte
}

// RemoteStats is a snapshot of remote source counters.
type RemoteStats struct {
	MessagesReceived int64
	StaleDropped     int64
	DecodeErrors     int64
	FramesDelivered  int64
}

// RemoteSource streams frames from a simulator over a websocket.
type RemoteSource struct {
	url     string
	opts    *options
	logger  *slog.Logger
	metrics *metric.Metrics
	*emitter

	connMu   sync.Mutex
	conn     *websocket.Conn
	connLost chan struct{}
	writeMu  sync.Mutex

	queue *buffer.CircularBuffer[inbound]
	loops errgroup.Group

	// logLimiter throttles per-message warnings. Counters and error
	// events are never throttled.
	logLimiter *rate.Limiter

	mu       sync.Mutex
	fileName string
	infoWait chan codec.TrajectoryInfo
	health   map[string]chan struct{}
	streamed bool

	messagesReceived atomic.Int64
	staleDropped     atomic.Int64
	decodeErrors     atomic.Int64
	framesDelivered  atomic.Int64
}

// NewRemoteSource creates a source for the simulator at url. Connect must
// be called before Initialize.
func NewRemoteSource(url string, opts ...Option) (*RemoteSource, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "remote", "NewRemoteSource", "validate url")
	}

	o := applyOptions(opts)
	name := "remote"

	var bufOpts []buffer.Option[inbound]
	bufOpts = append(bufOpts, buffer.WithOverflowPolicy[inbound](buffer.Block))
	if o.registry != nil {
		bufOpts = append(bufOpts, buffer.WithMetrics[inbound](o.registry, name+"_inbound"))
	}
	queue, err := buffer.NewCircularBuffer[inbound](o.queueSize, bufOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "remote", "NewRemoteSource", "create inbound queue")
	}

	r := &RemoteSource{
		url:      url,
		opts:     o,
		logger:   o.logger.With("component", "remote_source", "url", url),
		emitter:  newEmitter(name, o.eventBuffer),
		queue:    queue,
		health:   make(map[string]chan struct{}),
		connLost: make(chan struct{}),

		logLimiter: rate.NewLimiter(rate.Limit(10), 20),
	}
	if o.registry != nil {
		r.metrics = o.registry.CoreMetrics()
	}
	return r, nil
}

// Name returns the source name.
func (r *RemoteSource) Name() string { return r.name }

// Events returns the source's event channel.
func (r *RemoteSource) Events() <-chan Event { return r.events }

// Stats returns a snapshot of the source's counters.
func (r *RemoteSource) Stats() RemoteStats {
	return RemoteStats{
		MessagesReceived: r.messagesReceived.Load(),
		StaleDropped:     r.staleDropped.Load(),
		DecodeErrors:     r.decodeErrors.Load(),
		FramesDelivered:  r.framesDelivered.Load(),
	}
}

// Connect dials the simulator and starts the reader and decoder.
func (r *RemoteSource) Connect(ctx context.Context) error {
	if err := r.aborted("remote", "Connect"); err != nil {
		return err
	}

	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "remote", "Connect", "check connection")
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: r.opts.handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		r.trackError("connect")
		return errors.WrapConnection(err, "remote", "Connect", "dial simulator")
	}
	r.conn = conn

	r.logger.Info("Connected to simulator")
	if r.metrics != nil {
		r.metrics.RecordSourceConnected(r.name, true)
	}

	r.loops.Go(func() error {
		r.readLoop(conn)
		return nil
	})
	r.loops.Go(func() error {
		r.processLoop()
		return nil
	})
	return nil
}

// Initialize requests the named trajectory and waits for its metadata.
// Responses for any previously requested file are dropped from now on.
func (r *RemoteSource) Initialize(ctx context.Context, name string) (codec.TrajectoryInfo, error) {
	wait := r.expectInfo(name)
	if err := r.send(ctx, "Initialize", request{MsgType: MsgInitTrajectoryFile, FileName: name}); err != nil {
		return codec.TrajectoryInfo{}, err
	}
	return r.awaitInfo(ctx, "Initialize", wait)
}

// ConvertTrajectory asks the simulator to convert an uploaded trajectory of
// the given format and waits for the converted file's metadata.
func (r *RemoteSource) ConvertTrajectory(
	ctx context.Context, fileName, format string, data json.RawMessage,
) (codec.TrajectoryInfo, error) {
	wait := r.expectInfo(fileName)
	req := request{
		MsgType:  MsgConvertTrajectoryFile,
		FileName: fileName,
		TrajType: format,
		Data:     data,
	}
	if err := r.send(ctx, "ConvertTrajectory", req); err != nil {
		return codec.TrajectoryInfo{}, err
	}
	return r.awaitInfo(ctx, "ConvertTrajectory", wait)
}

func (r *RemoteSource) expectInfo(name string) chan codec.TrajectoryInfo {
	wait := make(chan codec.TrajectoryInfo, 1)
	r.mu.Lock()
	r.fileName = name
	r.infoWait = wait
	r.streamed = false
	r.mu.Unlock()
	return wait
}

func (r *RemoteSource) awaitInfo(ctx context.Context, method string, wait chan codec.TrajectoryInfo) (codec.TrajectoryInfo, error) {
	select {
	case info := <-wait:
		return info, nil
	case <-ctx.Done():
		return codec.TrajectoryInfo{}, ctx.Err()
	case <-r.done():
		return codec.TrajectoryInfo{}, errors.WrapInvalid(errors.ErrAborted, "remote", method, "await trajectory info")
	case <-r.connLost:
		return codec.TrajectoryInfo{}, errors.WrapConnection(errors.ErrConnectionLost, "remote", method,
			"await trajectory info")
	}
}

// Stream starts playback of the current file, or resumes it after Pause.
func (r *RemoteSource) Stream(ctx context.Context) error {
	r.mu.Lock()
	name, resume := r.fileName, r.streamed
	r.streamed = true
	r.mu.Unlock()

	if resume {
		return r.send(ctx, "Stream", request{MsgType: MsgVisDataResume, FileName: name})
	}
	mode := ModeTrajectoryFile
	return r.send(ctx, "Stream", request{MsgType: MsgVisDataRequest, FileName: name, Mode: &mode})
}

// Pause asks the simulator to stop sending frames.
func (r *RemoteSource) Pause(ctx context.Context) error {
	return r.send(ctx, "Pause", request{MsgType: MsgVisDataPause, FileName: r.currentFile()})
}

// RequestFrame asks for a single frame by number.
func (r *RemoteSource) RequestFrame(ctx context.Context, n int) error {
	mode := ModeTrajectoryFile
	return r.send(ctx, "RequestFrame", request{
		MsgType:     MsgVisDataRequest,
		FileName:    r.currentFile(),
		Mode:        &mode,
		FrameNumber: &n,
	})
}

// RequestFrameByTime asks the simulator to jump to simulation time t.
func (r *RemoteSource) RequestFrameByTime(ctx context.Context, t float64) error {
	return r.send(ctx, "RequestFrameByTime", request{
		MsgType:  MsgGotoSimulationTime,
		FileName: r.currentFile(),
		Time:     &t,
	})
}

// UpdateTimeStep changes the simulation time step of a live simulation.
func (r *RemoteSource) UpdateTimeStep(ctx context.Context, step float64) error {
	return r.send(ctx, "UpdateTimeStep", request{MsgType: MsgUpdateTimeStep, TimeStep: &step})
}

// UpdateRateParam changes a named rate parameter of a live simulation.
func (r *RemoteSource) UpdateRateParam(ctx context.Context, name string, value float64) error {
	return r.send(ctx, "UpdateRateParam", request{MsgType: MsgUpdateRateParam, ParamName: name, ParamValue: &value})
}

// CheckHealth sends a health check and waits for the matching response.
func (r *RemoteSource) CheckHealth(ctx context.Context) error {
	id := uuid.NewString()
	wait := make(chan struct{})

	r.mu.Lock()
	r.health[id] = wait
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.health, id)
		r.mu.Unlock()
	}()

	if err := r.send(ctx, "CheckHealth", request{MsgType: MsgHealthCheckRequest, ConnID: id}); err != nil {
		return err
	}

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return errors.WrapConnection(ctx.Err(), "remote", "CheckHealth", "await response")
	case <-r.done():
		return errors.WrapInvalid(errors.ErrAborted, "remote", "CheckHealth", "await response")
	case <-r.connLost:
		return errors.WrapConnection(errors.ErrConnectionLost, "remote", "CheckHealth", "await response")
	}
}

// Abort tells the simulator to stop, closes the connection and closes the
// event channel.
func (r *RemoteSource) Abort() error {
	r.shutdown(func() {
		r.connMu.Lock()
		conn := r.conn
		r.connMu.Unlock()

		if conn != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := r.write(ctx, conn, request{MsgType: MsgVisDataAbort, FileName: r.currentFile()}); err != nil {
				r.logger.Debug("Abort message not delivered", "error", err)
			}
			cancel()
			conn.Close()
		}
		r.queue.Close()
		_ = r.loops.Wait()

		if conn != nil && r.metrics != nil {
			r.metrics.RecordSourceConnected(r.name, false)
		}
		r.logger.Info("Remote source aborted")
	})
	return nil
}

func (r *RemoteSource) currentFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fileName
}

func (r *RemoteSource) send(ctx context.Context, method string, req request) error {
	if err := r.aborted("remote", method); err != nil {
		return err
	}
	r.connMu.Lock()
	conn := r.conn
	r.connMu.Unlock()
	if conn == nil {
		return errors.WrapConnection(errors.ErrNoConnection, "remote", method, "send "+req.MsgType.String())
	}
	if err := r.write(ctx, conn, req); err != nil {
		r.trackError("write")
		return errors.WrapConnection(err, "remote", method, "send "+req.MsgType.String())
	}
	return nil
}

func (r *RemoteSource) write(ctx context.Context, conn *websocket.Conn, v any) error {
	deadline := time.Now().Add(r.opts.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// readLoop moves raw messages into the inbound queue until the connection
// closes.
func (r *RemoteSource) readLoop(conn *websocket.Conn) {
	defer close(r.connLost)
	defer r.queue.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-r.done():
			default:
				r.trackError("read")
				r.logger.Warn("Simulator connection lost", "error", err)
				if r.metrics != nil {
					r.metrics.RecordSourceConnected(r.name, false)
				}
				r.emitError(r.currentFile(), errors.WrapConnection(err, "remote", "readLoop", "read message"), nil)
			}
			return
		}

		r.messagesReceived.Add(1)
		msg := inbound{binary: msgType == websocket.BinaryMessage, data: data}
		if err := r.queue.Write(r.ctx, msg); err != nil {
			return
		}
	}
}

// processLoop decodes queued messages in arrival order.
func (r *RemoteSource) processLoop() {
	for {
		msg, err := r.queue.ReadContext(r.ctx)
		if err != nil {
			return
		}
		if msg.binary {
			r.handleBinary(msg.data)
		} else {
			r.handleJSON(msg.data)
		}
	}
}

// stale reports whether a response belongs to a file other than the one
// most recently requested.
func (r *RemoteSource) stale(fileName string, msgType MsgType) bool {
	current := r.currentFile()
	if fileName == current {
		return false
	}
	r.staleDropped.Add(1)
	if !r.logLimiter.Allow() {
		return true
	}
	r.logger.Debug("Dropping response for superseded file",
		"msg_type", msgType.String(), "file", fileName, "current", current)
	return true
}

func (r *RemoteSource) handleBinary(data []byte) {
	msgType, fileName, payload, err := parseBinaryMessage(data)
	if err != nil {
		r.protocolError(err)
		return
	}
	if msgType != MsgVisDataArrive {
		r.protocolError(errors.WrapProtocol(fmt.Errorf("unexpected binary %s message", msgType),
			"remote", "handleBinary", "dispatch message"))
		return
	}
	if r.stale(fileName, msgType) {
		return
	}

	frames, err := codec.ParseBinaryFrames(payload)
	if err != nil {
		r.decodeError(fileName, err)
		return
	}
	r.deliver(fileName, frames)
}

func (r *RemoteSource) handleJSON(data []byte) {
	env, err := parseEnvelope(data)
	if err != nil {
		r.protocolError(err)
		return
	}

	switch env.MsgType {
	case MsgHeartbeatPing:
		if err := r.send(r.ctx, "handleJSON", request{MsgType: MsgHeartbeatPong, ConnID: env.ConnID}); err != nil {
			r.logger.Debug("Heartbeat reply failed", "error", err)
		}
		return

	case MsgHealthCheckResponse:
		r.mu.Lock()
		wait, ok := r.health[env.ConnID]
		delete(r.health, env.ConnID)
		r.mu.Unlock()
		if ok {
			close(wait)
		}
		return

	case MsgErrorMessage:
		r.protocolError(errors.WrapProtocol(fmt.Errorf("simulator error: %s", env.ErrorMessage),
			"remote", "handleJSON", "handle error message"))
		return
	}

	if r.stale(env.FileName, env.MsgType) {
		return
	}

	switch env.MsgType {
	case MsgTrajectoryFileInfo:
		info, err := codec.DecodeTrajectoryInfo(data)
		if err != nil {
			r.protocolError(err)
			return
		}
		r.mu.Lock()
		wait := r.infoWait
		r.infoWait = nil
		r.mu.Unlock()
		if wait != nil {
			wait <- info
		}

	case MsgVisDataArrive:
		var bundle codec.VisDataBundle
		if err := json.Unmarshal(data, &bundle); err != nil {
			r.decodeError(env.FileName, errors.WrapParse(err, "remote", "handleJSON", "unmarshal bundle"))
			return
		}
		r.deliver(env.FileName, codec.BundleFrames(bundle.BundleData))

	case MsgVisDataFinish:
		r.emit(Event{Kind: EventEnded, FileName: env.FileName}, nil)

	default:
		r.protocolError(errors.WrapProtocol(fmt.Errorf("unexpected %s message", env.MsgType),
			"remote", "handleJSON", "dispatch message"))
	}
}

// deliver decodes every frame it can; a malformed frame is reported and
// skipped without affecting the rest of the bundle.
func (r *RemoteSource) deliver(fileName string, acc codec.FrameAccessor) {
	frames := make([]codec.Frame, 0, acc.NumFrames())
	for i := 0; i < acc.NumFrames(); i++ {
		frame, err := acc.Frame(i)
		if err != nil {
			r.decodeError(fileName, err)
			continue
		}
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return
	}

	if r.emit(Event{Kind: EventFrames, FileName: fileName, Frames: frames}, nil) {
		r.framesDelivered.Add(int64(len(frames)))
		if r.metrics != nil {
			r.metrics.RecordFrames(r.name, len(frames))
		}
	}
}

func (r *RemoteSource) decodeError(fileName string, err error) {
	r.decodeErrors.Add(1)
	if r.metrics != nil {
		r.metrics.RecordDecodeError(r.name)
	}
	if r.logLimiter.Allow() {
		r.logger.Warn("Dropping malformed frame", "file", fileName, "error", err)
	}
	r.emitError(fileName, err, nil)
}

func (r *RemoteSource) protocolError(err error) {
	r.trackError("protocol")
	r.logger.Warn("Protocol error", "error", err)
	r.emitError(r.currentFile(), err, nil)
}

func (r *RemoteSource) trackError(kind string) {
	if r.metrics != nil {
		r.metrics.RecordError("remote_source", kind)
	}
}
