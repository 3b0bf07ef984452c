package source

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/c360/trajstream/codec"
	"github.com/c360/trajstream/errors"
)

// Model is an in-process simulation that can be stepped synchronously.
type Model interface {
	// Info describes the trajectory the model produces.
	Info() codec.TrajectoryInfo

	// Update returns the flat agent record for frame n.
	Update(n int) ([]float64, error)
}

// ClientSource polls an in-process Model on a fixed tick.
type ClientSource struct {
	model  Model
	logger *slog.Logger
	*emitter
	pacer pacer

	// produceMu serializes model access between the ticker and
	// out-of-band requests.
	produceMu sync.Mutex

	mu       sync.Mutex
	info     codec.TrajectoryInfo
	fileName string
	cursor   int
}

// NewClientSource wraps model. Frames are produced every tick interval,
// DefaultTickInterval unless overridden with WithTickInterval.
func NewClientSource(model Model, opts ...Option) (*ClientSource, error) {
	if model == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "client", "NewClientSource", "validate model")
	}
	o := applyOptions(opts)
	return &ClientSource{
		model:   model,
		logger:  o.logger.With("component", "client_source"),
		emitter: newEmitter("client", o.eventBuffer),
		pacer:   pacer{interval: o.interval},
	}, nil
}

// Name returns the source name.
func (c *ClientSource) Name() string { return c.name }

// Events returns the source's event channel.
func (c *ClientSource) Events() <-chan Event { return c.events }

// Initialize resets the cursor and returns the model's metadata.
func (c *ClientSource) Initialize(_ context.Context, name string) (codec.TrajectoryInfo, error) {
	if err := c.aborted("client", "Initialize"); err != nil {
		return codec.TrajectoryInfo{}, err
	}
	info := c.model.Info()

	c.mu.Lock()
	c.info = info
	c.fileName = name
	c.cursor = 0
	c.mu.Unlock()
	return info, nil
}

// Stream starts polling the model.
func (c *ClientSource) Stream(_ context.Context) error {
	if err := c.aborted("client", "Stream"); err != nil {
		return err
	}
	if !c.pacer.start(c.step) {
		c.logger.Debug("Stream called while already streaming")
	}
	return nil
}

// Pause stops polling. The next Stream continues from the same frame.
func (c *ClientSource) Pause(_ context.Context) error {
	c.pacer.halt()
	return nil
}

// RequestFrame produces frame n and moves the cursor past it. The frame
// arrives on Events like any other.
func (c *ClientSource) RequestFrame(_ context.Context, n int) error {
	if err := c.aborted("client", "RequestFrame"); err != nil {
		return err
	}
	name := c.currentFile()
	if n < 0 {
		c.async(func() {
			c.emitError(name, frameNotFound("client", "RequestFrame", "negative frame number"), nil)
		})
		return nil
	}

	c.mu.Lock()
	c.cursor = n
	c.mu.Unlock()
	c.async(func() {
		c.deliver(n, name, nil)
	})
	return nil
}

// RequestFrameByTime produces the frame nearest to t.
func (c *ClientSource) RequestFrameByTime(ctx context.Context, t float64) error {
	c.mu.Lock()
	step := c.info.TimeStepSize
	c.mu.Unlock()

	n := 0
	if step > 0 {
		n = int(math.Round(t / step))
	}
	return c.RequestFrame(ctx, n)
}

// Abort stops polling and closes the event channel.
func (c *ClientSource) Abort() error {
	c.shutdown(func() {
		c.pacer.halt()
		c.mu.Lock()
		c.cursor = 0
		c.mu.Unlock()
	})
	return nil
}

func (c *ClientSource) currentFile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileName
}

func (c *ClientSource) step(stop <-chan struct{}) bool {
	c.mu.Lock()
	n, name := c.cursor, c.fileName
	c.mu.Unlock()

	c.deliver(n, name, stop)
	return true
}

// deliver emits frame n with the cursor already moved past it, restoring
// the cursor if the event is not delivered. A model or decode failure
// skips the frame.
func (c *ClientSource) deliver(n int, name string, stop <-chan struct{}) {
	ev := Event{Kind: EventFrames, FileName: name}
	frame, err := c.render(n)
	if err != nil {
		c.logger.Warn("Skipping frame", "frame", n, "error", err)
		ev = Event{Kind: EventError, FileName: name, Err: err}
	} else {
		ev.Frames = []codec.Frame{frame}
	}

	c.mu.Lock()
	if c.cursor == n {
		c.cursor = n + 1
	}
	c.mu.Unlock()

	if !c.emit(ev, stop) {
		c.mu.Lock()
		if c.cursor == n+1 {
			c.cursor = n
		}
		c.mu.Unlock()
	}
}

func (c *ClientSource) render(n int) (codec.Frame, error) {
	c.produceMu.Lock()
	defer c.produceMu.Unlock()

	c.mu.Lock()
	step := c.info.TimeStepSize
	c.mu.Unlock()

	values, err := c.model.Update(n)
	if err != nil {
		return codec.Frame{}, errors.Wrap(err, "client", "render", "update model")
	}
	return codec.DecodeFlatRecord(values, n, float64(n)*step)
}
