// Package cache provides FrameCache, the ordered, size-bounded store of
// decoded frames that sits between a simulator source and the playback head.
//
// # Ordering and eviction
//
// Frames are kept in ascending frame-number order in an arena of nodes linked
// by index, with a map from frame number to arena slot. Capacity is measured
// in estimated bytes (codec.Frame.Size). When a new frame does not fit, frames
// are evicted from the head, the oldest frame number, until it does; eviction
// never touches the middle or the tail.
//
// Sources normally deliver frames in ascending order, so AddFrame appends.
// A frame that arrives early is inserted at its ordered position and a frame
// number seen twice replaces the stored frame. Verify walks the structure and
// reports a cache consistency error if any invariant is broken.
//
// # Lookup
//
// Frame-number lookup goes through the index. Time lookup scans from whichever
// end is nearer the requested time and matches within half a time step; a
// time outside the cached range is always a miss.
//
// # Bypass
//
// A cache created with Enabled false holds nothing: AddFrame is a no-op and
// every lookup misses. Consumers in bypass mode take frames directly from the
// source.
//
// # Observability
//
// Statistics are always collected. Prometheus metrics are registered when
// WithMetrics is given, and WithUpdateCallback reports every add, eviction
// and clear:
//
//	registry := metric.NewMetricsRegistry()
//	frames, err := cache.New(cache.Config{Enabled: true, MaxSize: 64 << 20},
//	    cache.WithMetrics(registry, "viewer"),
//	    cache.WithUpdateCallback(func(u cache.Update) {
//	        log.Printf("%s frame %d, %d frames cached", u.Kind, u.FrameNumber, u.NumFrames)
//	    }))
package cache
