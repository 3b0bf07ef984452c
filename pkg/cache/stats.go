package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks frame cache activity.
type Statistics struct {
	hits         int64
	misses       int64
	adds         int64
	replacements int64
	reorders     int64
	evictions    int64
	rejections   int64

	mu        sync.RWMutex
	startTime time.Time
	bytes     int64
	peakBytes int64
	frames    int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
	}
}

// Hit records a lookup served from cache.
func (s *Statistics) Hit() { atomic.AddInt64(&s.hits, 1) }

// Miss records a lookup that found nothing.
func (s *Statistics) Miss() { atomic.AddInt64(&s.misses, 1) }

// Add records a newly inserted frame.
func (s *Statistics) Add() { atomic.AddInt64(&s.adds, 1) }

// Replace records a frame that replaced one with the same number.
func (s *Statistics) Replace() { atomic.AddInt64(&s.replacements, 1) }

// Reorder records a frame inserted before the tail.
func (s *Statistics) Reorder() { atomic.AddInt64(&s.reorders, 1) }

// Eviction records a capacity eviction.
func (s *Statistics) Eviction() { atomic.AddInt64(&s.evictions, 1) }

// Reject records a frame refused for being larger than the cache.
func (s *Statistics) Reject() { atomic.AddInt64(&s.rejections, 1) }

// UpdateSize records the current byte size and frame count.
func (s *Statistics) UpdateSize(bytes, frames int64) {
	s.mu.Lock()
	s.bytes = bytes
	s.frames = frames
	if bytes > s.peakBytes {
		s.peakBytes = bytes
	}
	s.mu.Unlock()
}

// Hits returns the number of cache hits.
func (s *Statistics) Hits() int64 { return atomic.LoadInt64(&s.hits) }

// Misses returns the number of cache misses.
func (s *Statistics) Misses() int64 { return atomic.LoadInt64(&s.misses) }

// Adds returns the number of frames inserted.
func (s *Statistics) Adds() int64 { return atomic.LoadInt64(&s.adds) }

// Replacements returns the number of duplicate frame numbers replaced.
func (s *Statistics) Replacements() int64 { return atomic.LoadInt64(&s.replacements) }

// Reorders returns the number of out-of-order insertions.
func (s *Statistics) Reorders() int64 { return atomic.LoadInt64(&s.reorders) }

// Evictions returns the number of capacity evictions.
func (s *Statistics) Evictions() int64 { return atomic.LoadInt64(&s.evictions) }

// Rejections returns the number of oversized frames refused.
func (s *Statistics) Rejections() int64 { return atomic.LoadInt64(&s.rejections) }

// Bytes returns the current estimated size in bytes.
func (s *Statistics) Bytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes
}

// PeakBytes returns the largest size the cache has reached.
func (s *Statistics) PeakBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peakBytes
}

// Frames returns the current number of frames.
func (s *Statistics) Frames() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// HitRatio returns hits over lookups (0.0 to 1.0).
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Uptime returns how long the statistics have been collected.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// Reset resets all statistics to zero.
func (s *Statistics) Reset() {
	atomic.StoreInt64(&s.hits, 0)
	atomic.StoreInt64(&s.misses, 0)
	atomic.StoreInt64(&s.adds, 0)
	atomic.StoreInt64(&s.replacements, 0)
	atomic.StoreInt64(&s.reorders, 0)
	atomic.StoreInt64(&s.evictions, 0)
	atomic.StoreInt64(&s.rejections, 0)

	s.mu.Lock()
	s.startTime = time.Now()
	s.bytes = 0
	s.peakBytes = 0
	s.frames = 0
	s.mu.Unlock()
}

// StatsSummary is a snapshot of all statistics.
type StatsSummary struct {
	Hits         int64         `json:"hits"`
	Misses       int64         `json:"misses"`
	Adds         int64         `json:"adds"`
	Replacements int64         `json:"replacements"`
	Reorders     int64         `json:"reorders"`
	Evictions    int64         `json:"evictions"`
	Rejections   int64         `json:"rejections"`
	Bytes        int64         `json:"bytes"`
	PeakBytes    int64         `json:"peak_bytes"`
	Frames       int64         `json:"frames"`
	HitRatio     float64       `json:"hit_ratio"`
	Uptime       time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:         s.Hits(),
		Misses:       s.Misses(),
		Adds:         s.Adds(),
		Replacements: s.Replacements(),
		Reorders:     s.Reorders(),
		Evictions:    s.Evictions(),
		Rejections:   s.Rejections(),
		Bytes:        s.Bytes(),
		PeakBytes:    s.PeakBytes(),
		Frames:       s.Frames(),
		HitRatio:     s.HitRatio(),
		Uptime:       s.Uptime(),
	}
}
