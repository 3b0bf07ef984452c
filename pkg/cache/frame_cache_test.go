package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trajstream/codec"
	"github.com/c360/trajstream/errors"
)

// emptyFrameSize is the estimated size of a frame with no agents.
const emptyFrameSize = 12

func frame(n int, t float64) codec.Frame {
	return codec.Frame{FrameNumber: n, Time: t}
}

func newTestCache(t *testing.T, maxFrames int, options ...Option) *FrameCache {
	t.Helper()
	c, err := New(Config{Enabled: true, MaxSize: ByteSize(maxFrames * emptyFrameSize), TimeStep: 1}, options...)
	require.NoError(t, err)
	return c
}

func TestFrameCache_EvictsOldestFirst(t *testing.T) {
	c := newTestCache(t, 5)

	for i := 0; i < 10; i++ {
		require.NoError(t, c.AddFrame(frame(i, float64(i))))

		assert.LessOrEqual(t, c.Size(), c.MaxSize())
		expectedFirst := i - 4
		if expectedFirst < 0 {
			expectedFirst = 0
		}
		assert.Equal(t, expectedFirst, c.GetFirstFrameNumber(), "after adding frame %d", i)
		assert.Equal(t, i, c.GetLastFrameNumber())
		require.NoError(t, c.Verify())
	}

	assert.Equal(t, []int{5, 6, 7, 8, 9}, c.FrameNumbers())
	assert.False(t, c.ContainsFrameAtFrameNumber(4))
	assert.True(t, c.ContainsFrameAtFrameNumber(5))
	assert.Equal(t, int64(5), c.Stats().Evictions())
}

func TestFrameCache_GetFrameAtTime(t *testing.T) {
	c := newTestCache(t, 10)
	for i := 2; i <= 6; i++ {
		require.NoError(t, c.AddFrame(frame(i, float64(i))))
	}

	for _, tm := range []float64{2, 3, 4.2, 5.9, 6} {
		f, ok := c.GetFrameAtTime(tm)
		assert.True(t, ok, "time %v inside cached range", tm)
		assert.InDelta(t, tm, f.Time, 0.5)
		assert.True(t, c.ContainsTime(tm))
	}

	for _, tm := range []float64{0, 1.9, 6.1, 100} {
		_, ok := c.GetFrameAtTime(tm)
		assert.False(t, ok, "time %v outside cached range", tm)
		assert.False(t, c.ContainsTime(tm))
	}

	f, ok := c.GetFrameAtTime(4.4)
	require.True(t, ok)
	assert.Equal(t, 4, f.FrameNumber)
	f, ok = c.GetFrameAtTime(4.6)
	require.True(t, ok)
	assert.Equal(t, 5, f.FrameNumber)
}

func TestFrameCache_TimeGap(t *testing.T) {
	c := newTestCache(t, 10)
	require.NoError(t, c.AddFrame(frame(0, 0)))
	require.NoError(t, c.AddFrame(frame(5, 5)))

	_, ok := c.GetFrameAtTime(2)
	assert.False(t, ok, "no frame within half a step of 2")
	assert.Equal(t, int64(1), c.Stats().Misses())
}

func TestFrameCache_FrameNumberLookup(t *testing.T) {
	c := newTestCache(t, 10)
	require.NoError(t, c.AddFrame(frame(3, 0.3)))

	f, ok := c.GetFrameAtFrameNumber(3)
	require.True(t, ok)
	assert.Equal(t, 0.3, f.Time)

	_, ok = c.GetFrameAtFrameNumber(4)
	assert.False(t, ok)

	assert.Equal(t, int64(1), c.Stats().Hits())
	assert.Equal(t, int64(1), c.Stats().Misses())
	assert.Equal(t, 0.5, c.Stats().HitRatio())
}

func TestFrameCache_OutOfOrderInsert(t *testing.T) {
	c := newTestCache(t, 10)
	for _, n := range []int{1, 4, 2, 0, 3, 6, 5} {
		require.NoError(t, c.AddFrame(frame(n, float64(n))))
		require.NoError(t, c.Verify())
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, c.FrameNumbers())
	assert.Equal(t, int64(4), c.Stats().Reorders())
	assert.Equal(t, 0, c.GetFirstFrameNumber())
}

func TestFrameCache_DuplicateReplaces(t *testing.T) {
	c := newTestCache(t, 10)
	require.NoError(t, c.AddFrame(frame(1, 1)))
	require.NoError(t, c.AddFrame(frame(2, 2)))

	replacement := codec.Frame{FrameNumber: 1, Time: 1, Agents: []codec.AgentRecord{{TypeID: 9}}}
	require.NoError(t, c.AddFrame(replacement))
	require.NoError(t, c.Verify())

	assert.Equal(t, 2, c.NumFrames())
	assert.Equal(t, []int{1, 2}, c.FrameNumbers())
	got, ok := c.GetFrameAtFrameNumber(1)
	require.True(t, ok)
	assert.Equal(t, 9, got.Agents[0].TypeID)
	assert.Equal(t, emptyFrameSize+replacement.Size(), c.Size())
	assert.Equal(t, int64(1), c.Stats().Replacements())
}

func TestFrameCache_RejectsOversizedFrame(t *testing.T) {
	c := newTestCache(t, 1)
	big := codec.Frame{FrameNumber: 0, Agents: []codec.AgentRecord{{}}}

	err := c.AddFrame(big)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.True(t, errors.IsInvalid(err))
	assert.True(t, c.IsEmpty())
	assert.Equal(t, int64(1), c.Stats().Rejections())
}

func TestFrameCache_TrimCache(t *testing.T) {
	c := newTestCache(t, 5)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.AddFrame(frame(i, float64(i))))
	}

	c.TrimCache(2 * emptyFrameSize)
	assert.Equal(t, []int{2, 3, 4}, c.FrameNumbers())

	c.TrimCache(0)
	assert.Equal(t, 3, c.NumFrames())

	c.TrimCache(100 * emptyFrameSize)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, -1, c.GetFirstFrameNumber())
	assert.Equal(t, -1.0, c.GetLastFrameTime())
}

func TestFrameCache_Bypass(t *testing.T) {
	c, err := New(Config{Enabled: false})
	require.NoError(t, err)

	require.NoError(t, c.AddFrame(frame(0, 0)))
	assert.True(t, c.IsEmpty())
	assert.False(t, c.ContainsFrameAtFrameNumber(0))
	_, ok := c.GetFirstFrame()
	assert.False(t, ok)

	c.SetCacheEnabled(true)
	require.NoError(t, c.AddFrame(frame(0, 0)))
	assert.Equal(t, 1, c.NumFrames())

	c.SetCacheEnabled(false)
	assert.True(t, c.IsEmpty())
	assert.False(t, c.CacheEnabled())
}

func TestFrameCache_OnUpdate(t *testing.T) {
	var updates []Update
	c := newTestCache(t, 2, WithUpdateCallback(func(u Update) {
		updates = append(updates, u)
	}))

	require.NoError(t, c.AddFrame(frame(0, 0)))
	require.NoError(t, c.AddFrame(frame(1, 1)))
	require.NoError(t, c.AddFrame(frame(2, 2)))
	c.Clear()
	c.Clear()

	kinds := make([]UpdateKind, len(updates))
	for i, u := range updates {
		kinds[i] = u.Kind
	}
	assert.Equal(t, []UpdateKind{UpdateAdded, UpdateAdded, UpdateEvicted, UpdateAdded, UpdateCleared}, kinds)
	assert.Equal(t, 0, updates[2].FrameNumber)
	assert.Equal(t, 2, updates[3].NumFrames)
	assert.Equal(t, 0, updates[4].NumFrames)
}

func TestFrameCache_CallbackMayReenter(t *testing.T) {
	var c *FrameCache
	var seen []int
	c = newTestCache(t, 3, WithUpdateCallback(func(Update) {
		seen = append(seen, c.NumFrames())
	}))

	require.NoError(t, c.AddFrame(frame(0, 0)))
	assert.Equal(t, []int{1}, seen)
}

func TestFrameCache_EvictionCallback(t *testing.T) {
	var evicted []int
	c := newTestCache(t, 2, WithEvictionCallback(func(f codec.Frame) {
		evicted = append(evicted, f.FrameNumber)
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, c.AddFrame(frame(i, float64(i))))
	}
	assert.Equal(t, []int{0, 1, 2}, evicted)
}

func TestFrameCache_NextFrame(t *testing.T) {
	c := newTestCache(t, 10)
	for _, n := range []int{2, 4, 6} {
		require.NoError(t, c.AddFrame(frame(n, float64(n))))
	}

	f, ok := c.NextFrame(2)
	require.True(t, ok)
	assert.Equal(t, 4, f.FrameNumber)

	f, ok = c.NextFrame(-1)
	require.True(t, ok)
	assert.Equal(t, 2, f.FrameNumber)

	f, ok = c.NextFrame(5)
	require.True(t, ok)
	assert.Equal(t, 6, f.FrameNumber)

	_, ok = c.NextFrame(6)
	assert.False(t, ok)
}

func TestFrameCache_SetMaxSize(t *testing.T) {
	c := newTestCache(t, 5)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.AddFrame(frame(i, float64(i))))
	}

	require.NoError(t, c.SetMaxSize(2*emptyFrameSize))
	assert.Equal(t, []int{3, 4}, c.FrameNumbers())

	assert.ErrorIs(t, c.SetMaxSize(0), ErrInvalidSize)
}

func TestFrameCache_ClearReusesArena(t *testing.T) {
	c := newTestCache(t, 3)
	for round := 0; round < 3; round++ {
		for i := 0; i < 6; i++ {
			require.NoError(t, c.AddFrame(frame(i, float64(i))))
		}
		require.NoError(t, c.Verify())
		c.Clear()
		assert.Equal(t, 0, c.Size())
	}
	assert.LessOrEqual(t, len(c.nodes), 3)
}

func TestFrameCache_VerifyDetectsCorruption(t *testing.T) {
	c := newTestCache(t, 5)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.AddFrame(frame(i, float64(i))))
	}

	c.nodes[c.head].frame.FrameNumber = 10
	err := c.Verify()
	require.Error(t, err)
	assert.True(t, errors.IsCacheConsistency(err))
}

func TestFrameCache_StatsSize(t *testing.T) {
	c := newTestCache(t, 4)
	for i := 0; i < 6; i++ {
		require.NoError(t, c.AddFrame(frame(i, float64(i))))
	}

	summary := c.Stats().Summary()
	assert.Equal(t, int64(4*emptyFrameSize), summary.Bytes)
	assert.Equal(t, int64(4*emptyFrameSize), summary.PeakBytes)
	assert.Equal(t, int64(4), summary.Frames)
	assert.Equal(t, int64(6), summary.Adds)

	c.Stats().Reset()
	assert.Zero(t, c.Stats().Adds())
}
