package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/trajstream/codec"
	"github.com/c360/trajstream/errors"
	"github.com/c360/trajstream/metric"
)

// ErrFrameNotFound is reported when an out-of-band request names a frame
// the source does not have.
var ErrFrameNotFound = stderrors.New("frame not found")

// Source produces decoded frames for one trajectory.
type Source interface {
	// Initialize prepares the named trajectory and returns its metadata
	// once the source is ready to stream.
	Initialize(ctx context.Context, name string) (codec.TrajectoryInfo, error)

	// Stream begins continuous frame delivery.
	Stream(ctx context.Context) error

	// Pause stops delivery and keeps the current position.
	Pause(ctx context.Context) error

	// Abort stops delivery, resets position and releases resources. It is
	// safe to call more than once. The Events channel is closed on return.
	Abort() error

	// RequestFrame delivers frame n out of band.
	RequestFrame(ctx context.Context, n int) error

	// RequestFrameByTime delivers the frame at simulation time t out of band.
	RequestFrameByTime(ctx context.Context, t float64) error

	// Events carries frames, errors and end-of-stream notifications.
	Events() <-chan Event

	// Name identifies the source in logs and metrics.
	Name() string
}

// Connector is implemented by sources that must establish a connection
// before Initialize.
type Connector interface {
	Connect(ctx context.Context) error
}

// EventKind discriminates Event.
type EventKind int

// Event kinds.
const (
	EventFrames EventKind = iota + 1
	EventEnded
	EventError
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventFrames:
		return "frames"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a notification from a source.
type Event struct {
	Kind     EventKind
	Source   string
	FileName string
	Frames   []codec.Frame
	Err      error
}

// DefaultTickInterval paces local sources; about fifteen frames a second
// keeps the consumer's cache and render loop ahead of delivery.
const DefaultTickInterval = 66 * time.Millisecond

const defaultEventBuffer = 64

// Option configures a source.
type Option func(*options)

type options struct {
	logger           *slog.Logger
	registry         *metric.MetricsRegistry
	interval         time.Duration
	eventBuffer      int
	queueSize        int
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics exports source metrics to registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithTickInterval sets the streaming pace of local sources.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// WithQueueSize sets how many inbound messages a remote source holds
// before the reader waits for the decoder.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithTimeouts sets the remote handshake and write timeouts.
func WithTimeouts(handshake, write time.Duration) Option {
	return func(o *options) {
		if handshake > 0 {
			o.handshakeTimeout = handshake
		}
		if write > 0 {
			o.writeTimeout = write
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger:           slog.Default(),
		interval:         DefaultTickInterval,
		eventBuffer:      defaultEventBuffer,
		queueSize:        256,
		handshakeTimeout: 45 * time.Second,
		writeTimeout:     10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// emitter owns a source's event channel and lifetime context.
type emitter struct {
	name   string
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
}

func newEmitter(name string, buffer int) *emitter {
	ctx, cancel := context.WithCancel(context.Background())
	return &emitter{
		name:   name,
		events: make(chan Event, buffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// emit delivers ev unless the source is shutting down or stop fires first.
func (e *emitter) emit(ev Event, stop <-chan struct{}) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	ev.Source = e.name
	select {
	case e.events <- ev:
		return true
	case <-e.ctx.Done():
		return false
	case <-stop:
		return false
	}
}

func (e *emitter) emitError(fileName string, err error, stop <-chan struct{}) bool {
	return e.emit(Event{Kind: EventError, FileName: fileName, Err: err}, stop)
}

// async runs fn on a goroutine that shutdown waits for. Out-of-band
// requests use it so callers never block on a full event channel.
func (e *emitter) async(fn func()) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// shutdown cancels the lifetime context, runs release, then closes the
// event channel. Only the first call has any effect.
func (e *emitter) shutdown(release func()) {
	e.once.Do(func() {
		e.cancel()
		if release != nil {
			release()
		}
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.wg.Wait()
		close(e.events)
	})
}

func (e *emitter) done() <-chan struct{} { return e.ctx.Done() }

func (e *emitter) aborted(component, method string) error {
	select {
	case <-e.ctx.Done():
		return errors.WrapInvalid(errors.ErrAborted, component, method, "check source state")
	default:
		return nil
	}
}

func frameNotFound(component, method, what string) error {
	return errors.WrapProtocol(fmt.Errorf("%w: %s", ErrFrameNotFound, what), component, method, "locate frame")
}

// pacer runs a step function on a ticker until it reports completion or is
// halted.
type pacer struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// start launches the loop. It returns false if one is already running.
func (p *pacer) start(step func(stop <-chan struct{}) bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return false
	}

	stop := make(chan struct{})
	p.stop = stop
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !step(stop) {
					p.mu.Lock()
					if p.stop == stop {
						p.stop = nil
					}
					p.mu.Unlock()
					return
				}
			}
		}
	}()
	return true
}

// halt stops the loop and waits for an in-progress step to return.
func (p *pacer) halt() {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	p.wg.Wait()
}

func (p *pacer) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}
