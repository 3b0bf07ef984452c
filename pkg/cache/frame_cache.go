package cache

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/c360/trajstream/codec"
	"github.com/c360/trajstream/errors"
)

// nilIndex marks a missing link in the node arena.
const nilIndex = -1

// timeEpsilon widens the cached time range to absorb float32 frame times.
const timeEpsilon = 1e-6

type node struct {
	frame codec.Frame
	size  int
	prev  int
	next  int
}

// FrameCache is an ordered, size-bounded store of frames.
type FrameCache struct {
	mu sync.RWMutex

	nodes []node
	free  []int
	index map[int]int // frame number -> arena slot
	head  int
	tail  int

	size     int
	maxSize  int
	enabled  bool
	timeStep float64

	stats    *Statistics
	metrics  *cacheMetrics
	evictFn  EvictCallback
	onUpdate UpdateCallback
	logger   *slog.Logger
}

// New creates a frame cache from config.
func New(config Config, options ...Option) (*FrameCache, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "cache", "New", "config validation")
	}

	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "New", "metrics registration")
		}
	}

	maxSize := int(config.MaxSize)
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &FrameCache{
		index:    make(map[int]int),
		head:     nilIndex,
		tail:     nilIndex,
		maxSize:  maxSize,
		enabled:  config.Enabled,
		timeStep: config.TimeStep,
		stats:    NewStatistics(),
		metrics:  metrics,
		evictFn:  opts.evictCallback,
		onUpdate: opts.onUpdate,
		logger:   opts.logger.With("component", "frame-cache"),
	}, nil
}

// AddFrame stores a frame. Frames normally arrive in ascending frame-number
// order and are appended; an earlier frame is inserted at its ordered
// position and a repeated frame number replaces the stored frame. Frames
// are evicted from the head until the new frame fits. A disabled cache
// ignores the frame.
//
// Eviction runs before insertion, so an out-of-order frame older than
// everything left after eviction becomes the new head.
func (c *FrameCache) AddFrame(frame codec.Frame) error {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return nil
	}

	size := frame.Size()
	if size > c.maxSize {
		c.mu.Unlock()
		c.stats.Reject()
		return errors.WrapInvalid(
			fmt.Errorf("%w: frame %d is %d bytes, capacity %d", ErrFrameTooLarge, frame.FrameNumber, size, c.maxSize),
			"FrameCache", "AddFrame", "insert frame")
	}

	var updates []Update
	var evicted []codec.Frame

	slot, replaced := c.index[frame.FrameNumber]
	if replaced {
		c.removeLocked(slot)
	}
	evicted, updates = c.trimLocked(size, evicted, updates)
	reordered := c.insertLocked(frame, size)

	switch {
	case replaced:
		c.stats.Replace()
		updates = append(updates, c.update(UpdateReplaced, frame.FrameNumber))
	default:
		if reordered {
			c.stats.Reorder()
			if c.metrics != nil {
				c.metrics.reorders.Inc()
			}
			c.logger.Debug("frame arrived out of order", "frame", frame.FrameNumber)
		}
		c.stats.Add()
		if c.metrics != nil {
			c.metrics.adds.Inc()
		}
		updates = append(updates, c.update(UpdateAdded, frame.FrameNumber))
	}
	c.recordSizeLocked()
	c.mu.Unlock()

	c.notify(evicted, updates)
	return nil
}

// insertLocked links a new node at its ordered position. It reports whether
// the frame went anywhere but the tail.
func (c *FrameCache) insertLocked(frame codec.Frame, size int) bool {
	slot := c.alloc(node{frame: frame, size: size, prev: nilIndex, next: nilIndex})
	c.index[frame.FrameNumber] = slot
	c.size += size

	if c.tail == nilIndex {
		c.head, c.tail = slot, slot
		return false
	}
	if c.nodes[c.tail].frame.FrameNumber < frame.FrameNumber {
		c.linkAfter(c.tail, slot)
		return false
	}

	// first node with a larger frame number, searched from the nearer end
	var succ int
	if c.nearerHead(float64(frame.FrameNumber),
		float64(c.nodes[c.head].frame.FrameNumber), float64(c.nodes[c.tail].frame.FrameNumber)) {
		succ = c.head
		for c.nodes[succ].frame.FrameNumber < frame.FrameNumber {
			succ = c.nodes[succ].next
		}
	} else {
		succ = c.tail
		for p := c.nodes[succ].prev; p != nilIndex && c.nodes[p].frame.FrameNumber > frame.FrameNumber; p = c.nodes[p].prev {
			succ = p
		}
	}

	if prev := c.nodes[succ].prev; prev != nilIndex {
		c.linkAfter(prev, slot)
	} else {
		c.nodes[slot].next = succ
		c.nodes[succ].prev = slot
		c.head = slot
	}
	return true
}

func (c *FrameCache) linkAfter(at, slot int) {
	next := c.nodes[at].next
	c.nodes[slot].prev = at
	c.nodes[slot].next = next
	c.nodes[at].next = slot
	if next != nilIndex {
		c.nodes[next].prev = slot
	} else {
		c.tail = slot
	}
}

func (c *FrameCache) alloc(n node) int {
	if len(c.free) > 0 {
		slot := c.free[len(c.free)-1]
		c.free = c.free[:len(c.free)-1]
		c.nodes[slot] = n
		return slot
	}
	c.nodes = append(c.nodes, n)
	return len(c.nodes) - 1
}

// TrimCache evicts frames from the head until pendingSize more bytes fit.
func (c *FrameCache) TrimCache(pendingSize int) {
	c.mu.Lock()
	evicted, updates := c.trimLocked(pendingSize, nil, nil)
	c.recordSizeLocked()
	c.mu.Unlock()

	c.notify(evicted, updates)
}

// trimLocked evicts head frames until size+pending fits.
func (c *FrameCache) trimLocked(pending int, evicted []codec.Frame, updates []Update) ([]codec.Frame, []Update) {
	for c.head != nilIndex && c.size+pending > c.maxSize {
		frame := c.removeLocked(c.head)
		c.stats.Eviction()
		if c.metrics != nil {
			c.metrics.evictions.Inc()
		}
		evicted = append(evicted, frame)
		updates = append(updates, c.update(UpdateEvicted, frame.FrameNumber))
	}
	return evicted, updates
}

func (c *FrameCache) removeLocked(slot int) codec.Frame {
	n := c.nodes[slot]
	if n.prev != nilIndex {
		c.nodes[n.prev].next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nilIndex {
		c.nodes[n.next].prev = n.prev
	} else {
		c.tail = n.prev
	}

	delete(c.index, n.frame.FrameNumber)
	c.size -= n.size
	c.nodes[slot] = node{prev: nilIndex, next: nilIndex}
	c.free = append(c.free, slot)
	return n.frame
}

// Clear removes every frame.
func (c *FrameCache) Clear() {
	c.mu.Lock()
	had := len(c.index) > 0
	c.clearLocked()
	c.recordSizeLocked()
	var updates []Update
	if had {
		updates = append(updates, c.update(UpdateCleared, noFrame))
	}
	c.mu.Unlock()

	c.notify(nil, updates)
}

func (c *FrameCache) clearLocked() {
	c.nodes = c.nodes[:0]
	c.free = c.free[:0]
	c.index = make(map[int]int)
	c.head, c.tail = nilIndex, nilIndex
	c.size = 0
}

// ContainsFrameAtFrameNumber reports whether frame n is cached.
func (c *FrameCache) ContainsFrameAtFrameNumber(n int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[n]
	return ok
}

// GetFrameAtFrameNumber returns frame n.
func (c *FrameCache) GetFrameAtFrameNumber(n int) (codec.Frame, bool) {
	c.mu.RLock()
	slot, ok := c.index[n]
	var frame codec.Frame
	if ok {
		frame = c.nodes[slot].frame
	}
	c.mu.RUnlock()

	c.recordLookup(ok)
	return frame, ok
}

// ContainsTime reports whether a frame matches time t.
func (c *FrameCache) ContainsTime(t float64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.findTimeLocked(t) != nilIndex
}

// GetFrameAtTime returns the frame whose time matches t within half a time
// step. Times outside the cached range always miss.
func (c *FrameCache) GetFrameAtTime(t float64) (codec.Frame, bool) {
	c.mu.RLock()
	slot := c.findTimeLocked(t)
	var frame codec.Frame
	if slot != nilIndex {
		frame = c.nodes[slot].frame
	}
	c.mu.RUnlock()

	c.recordLookup(slot != nilIndex)
	return frame, slot != nilIndex
}

func (c *FrameCache) findTimeLocked(t float64) int {
	if c.head == nilIndex {
		return nilIndex
	}
	first := c.nodes[c.head].frame.Time
	last := c.nodes[c.tail].frame.Time
	if t < first-timeEpsilon || t > last+timeEpsilon {
		return nilIndex
	}

	tol := codec.TimeTolerance(c.timeStep)
	best, bestDelta := nilIndex, math.Inf(1)
	consider := func(slot int) {
		if d := math.Abs(c.nodes[slot].frame.Time - t); d <= tol && d < bestDelta {
			best, bestDelta = slot, d
		}
	}

	if c.nearerHead(t, first, last) {
		for s := c.head; s != nilIndex && c.nodes[s].frame.Time <= t+tol; s = c.nodes[s].next {
			consider(s)
		}
	} else {
		for s := c.tail; s != nilIndex && c.nodes[s].frame.Time >= t-tol; s = c.nodes[s].prev {
			consider(s)
		}
	}
	return best
}

// nearerHead estimates whether target lies closer to the head than the tail.
func (c *FrameCache) nearerHead(target, first, last float64) bool {
	return target-first <= last-target
}

// NextFrame returns the first cached frame after frame number after.
func (c *FrameCache) NextFrame(after int) (codec.Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if slot, ok := c.index[after]; ok {
		next := c.nodes[slot].next
		if next == nilIndex {
			return codec.Frame{}, false
		}
		return c.nodes[next].frame, true
	}
	for s := c.head; s != nilIndex; s = c.nodes[s].next {
		if c.nodes[s].frame.FrameNumber > after {
			return c.nodes[s].frame, true
		}
	}
	return codec.Frame{}, false
}

// GetFirstFrame returns the oldest cached frame.
func (c *FrameCache) GetFirstFrame() (codec.Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.head == nilIndex {
		return codec.Frame{}, false
	}
	return c.nodes[c.head].frame, true
}

// GetLastFrame returns the newest cached frame.
func (c *FrameCache) GetLastFrame() (codec.Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tail == nilIndex {
		return codec.Frame{}, false
	}
	return c.nodes[c.tail].frame, true
}

// GetFirstFrameNumber returns the oldest frame number, or -1 when empty.
func (c *FrameCache) GetFirstFrameNumber() int {
	if f, ok := c.GetFirstFrame(); ok {
		return f.FrameNumber
	}
	return noFrame
}

// GetLastFrameNumber returns the newest frame number, or -1 when empty.
func (c *FrameCache) GetLastFrameNumber() int {
	if f, ok := c.GetLastFrame(); ok {
		return f.FrameNumber
	}
	return noFrame
}

// GetFirstFrameTime returns the oldest frame time, or -1 when empty.
func (c *FrameCache) GetFirstFrameTime() float64 {
	if f, ok := c.GetFirstFrame(); ok {
		return f.Time
	}
	return noFrame
}

// GetLastFrameTime returns the newest frame time, or -1 when empty.
func (c *FrameCache) GetLastFrameTime() float64 {
	if f, ok := c.GetLastFrame(); ok {
		return f.Time
	}
	return noFrame
}

// FrameNumbers lists cached frame numbers head to tail.
func (c *FrameCache) FrameNumbers() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int, 0, len(c.index))
	for s := c.head; s != nilIndex; s = c.nodes[s].next {
		out = append(out, c.nodes[s].frame.FrameNumber)
	}
	return out
}

// Size returns the estimated bytes held.
func (c *FrameCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// NumFrames returns the number of frames held.
func (c *FrameCache) NumFrames() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// IsEmpty reports whether no frames are held.
func (c *FrameCache) IsEmpty() bool {
	return c.NumFrames() == 0
}

// MaxSize returns the capacity in bytes.
func (c *FrameCache) MaxSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxSize
}

// SetMaxSize changes the capacity, evicting from the head if needed.
func (c *FrameCache) SetMaxSize(maxSize int) error {
	if maxSize <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %d", ErrInvalidSize, maxSize),
			"FrameCache", "SetMaxSize", "set capacity")
	}
	c.mu.Lock()
	c.maxSize = maxSize
	evicted, updates := c.trimLocked(0, nil, nil)
	c.recordSizeLocked()
	c.mu.Unlock()

	c.notify(evicted, updates)
	return nil
}

// CacheEnabled reports whether the cache buffers frames.
func (c *FrameCache) CacheEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetCacheEnabled switches buffering. Disabling empties the cache.
func (c *FrameCache) SetCacheEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
	if !enabled {
		c.Clear()
	}
}

// SetTimeStep sets the trajectory time step used by time lookups.
func (c *FrameCache) SetTimeStep(step float64) {
	c.mu.Lock()
	c.timeStep = step
	c.mu.Unlock()
}

// SetOnUpdate replaces the update callback.
func (c *FrameCache) SetOnUpdate(fn UpdateCallback) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Stats returns cache statistics.
func (c *FrameCache) Stats() *Statistics {
	return c.stats
}

// Verify walks the cache and checks ordering, size accounting, and index
// agreement.
func (c *FrameCache) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fail := func(format string, args ...any) error {
		return errors.WrapCacheConsistency(fmt.Errorf(format, args...), "FrameCache", "Verify", "check invariants")
	}

	count, total, prev := 0, 0, nilIndex
	for s := c.head; s != nilIndex; s = c.nodes[s].next {
		n := c.nodes[s]
		if n.prev != prev {
			return fail("frame %d has broken back link", n.frame.FrameNumber)
		}
		if prev != nilIndex && c.nodes[prev].frame.FrameNumber >= n.frame.FrameNumber {
			return fail("frame %d follows frame %d", n.frame.FrameNumber, c.nodes[prev].frame.FrameNumber)
		}
		if slot, ok := c.index[n.frame.FrameNumber]; !ok || slot != s {
			return fail("frame %d missing from index", n.frame.FrameNumber)
		}
		count++
		total += n.size
		prev = s
		if count > len(c.nodes) {
			return fail("cycle after %d nodes", count)
		}
	}

	if prev != c.tail {
		return fail("tail does not terminate the list")
	}
	if count != len(c.index) {
		return fail("%d linked frames, %d indexed", count, len(c.index))
	}
	if total != c.size {
		return fail("size %d, nodes sum to %d", c.size, total)
	}
	if c.size > c.maxSize {
		return fail("size %d exceeds capacity %d", c.size, c.maxSize)
	}
	return nil
}

func (c *FrameCache) update(kind UpdateKind, frameNumber int) Update {
	return Update{Kind: kind, FrameNumber: frameNumber, Size: c.size, NumFrames: len(c.index)}
}

func (c *FrameCache) recordSizeLocked() {
	c.stats.UpdateSize(int64(c.size), int64(len(c.index)))
	if c.metrics != nil {
		c.metrics.updateSize(c.size, len(c.index))
	}
}

func (c *FrameCache) recordLookup(hit bool) {
	if hit {
		c.stats.Hit()
	} else {
		c.stats.Miss()
	}
	if c.metrics != nil {
		c.metrics.recordLookup(hit)
	}
}

func (c *FrameCache) notify(evicted []codec.Frame, updates []Update) {
	if c.evictFn != nil {
		for _, f := range evicted {
			c.evictFn(f)
		}
	}

	c.mu.RLock()
	fn := c.onUpdate
	c.mu.RUnlock()
	if fn == nil {
		return
	}
	for _, u := range updates {
		fn(u)
	}
}
