package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/c360/trajstream/codec"
	"github.com/c360/trajstream/errors"
)

// FileSource plays back an already decoded container.
type FileSource struct {
	frames codec.FrameAccessor
	info   codec.TrajectoryInfo
	closer io.Closer
	logger *slog.Logger
	*emitter
	pacer pacer

	mu       sync.Mutex
	fileName string
	cursor   int
}

// NewFileSource plays the frames of c.
func NewFileSource(c *codec.Container, opts ...Option) (*FileSource, error) {
	if c == nil || c.Frames == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "file", "NewFileSource", "validate container")
	}
	o := applyOptions(opts)
	return &FileSource{
		frames:  c.Frames,
		info:    c.TrajectoryInfo,
		logger:  o.logger.With("component", "file_source"),
		emitter: newEmitter("file", o.eventBuffer),
		pacer:   pacer{interval: o.interval},
	}, nil
}

// Name returns the source name.
func (f *FileSource) Name() string { return f.name }

// Events returns the source's event channel.
func (f *FileSource) Events() <-chan Event { return f.events }

// NumFrames returns the number of frames in the container.
func (f *FileSource) NumFrames() int { return f.frames.NumFrames() }

// Initialize rewinds to the first frame and returns the container's
// trajectory info.
func (f *FileSource) Initialize(_ context.Context, name string) (codec.TrajectoryInfo, error) {
	if err := f.aborted("file", "Initialize"); err != nil {
		return codec.TrajectoryInfo{}, err
	}
	f.mu.Lock()
	f.fileName = name
	f.cursor = 0
	f.mu.Unlock()

	f.logger.Debug("Initialized file source", "file", name, "frames", f.frames.NumFrames())
	return f.info, nil
}

// Stream walks the frames in order and pauses itself after the last one.
func (f *FileSource) Stream(_ context.Context) error {
	if err := f.aborted("file", "Stream"); err != nil {
		return err
	}

	f.mu.Lock()
	atEnd := f.cursor >= f.frames.NumFrames()
	name := f.fileName
	f.mu.Unlock()

	if atEnd {
		f.async(func() {
			f.emit(Event{Kind: EventEnded, FileName: name}, nil)
		})
		return nil
	}
	if !f.pacer.start(f.step) {
		f.logger.Debug("Stream called while already streaming")
	}
	return nil
}

// Pause stops the walk at the current frame.
func (f *FileSource) Pause(_ context.Context) error {
	f.pacer.halt()
	return nil
}

// RequestFrame delivers the frame numbered n and moves the cursor past it.
// A frame number outside the container is reported as ErrFrameNotFound.
func (f *FileSource) RequestFrame(_ context.Context, n int) error {
	if err := f.aborted("file", "RequestFrame"); err != nil {
		return err
	}
	idx, ok := codec.IndexOfFrameNumber(f.frames, n)
	f.seek(idx, ok, fmt.Sprintf("frame %d", n))
	return nil
}

// RequestFrameByTime delivers the frame within half a time step of t.
func (f *FileSource) RequestFrameByTime(_ context.Context, t float64) error {
	if err := f.aborted("file", "RequestFrameByTime"); err != nil {
		return err
	}
	idx, ok := codec.IndexOfTime(f.frames, t, f.info.TimeTolerance())
	f.seek(idx, ok, fmt.Sprintf("time %g", t))
	return nil
}

func (f *FileSource) seek(idx int, ok bool, what string) {
	f.mu.Lock()
	name := f.fileName
	if ok {
		f.cursor = idx
	}
	f.mu.Unlock()

	f.async(func() {
		if !ok {
			f.emitError(name, frameNotFound("file", "seek", what), nil)
			return
		}
		f.deliver(idx, name, nil)
	})
}

// Abort stops the walk, releases the container and closes the event channel.
func (f *FileSource) Abort() error {
	var err error
	f.shutdown(func() {
		f.pacer.halt()
		f.mu.Lock()
		f.cursor = 0
		f.mu.Unlock()
		if f.closer != nil {
			err = f.closer.Close()
		}
	})
	if err != nil {
		return errors.Wrap(err, "file", "Abort", "release container")
	}
	return nil
}

func (f *FileSource) step(stop <-chan struct{}) bool {
	f.mu.Lock()
	idx, name := f.cursor, f.fileName
	f.mu.Unlock()

	if idx >= f.frames.NumFrames() {
		f.emit(Event{Kind: EventEnded, FileName: name}, stop)
		return false
	}
	if !f.deliver(idx, name, stop) {
		return true
	}
	if idx+1 >= f.frames.NumFrames() {
		f.logger.Debug("Reached last frame", "file", name)
		f.emit(Event{Kind: EventEnded, FileName: name}, stop)
		return false
	}
	return true
}

// deliver emits frame idx with the cursor already moved past it,
// restoring the cursor and returning false if the event is not delivered.
func (f *FileSource) deliver(idx int, name string, stop <-chan struct{}) bool {
	ev := Event{Kind: EventFrames, FileName: name}
	frame, err := f.frames.Frame(idx)
	if err != nil {
		f.logger.Warn("Skipping malformed frame", "index", idx, "error", err)
		ev = Event{Kind: EventError, FileName: name, Err: err}
	} else {
		ev.Frames = []codec.Frame{frame}
	}

	f.mu.Lock()
	if f.cursor == idx {
		f.cursor = idx + 1
	}
	f.mu.Unlock()

	if !f.emit(ev, stop) {
		f.mu.Lock()
		if f.cursor == idx+1 {
			f.cursor = idx
		}
		f.mu.Unlock()
		return false
	}
	return true
}
