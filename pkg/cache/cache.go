package cache

import (
	stderrors "errors"

	"github.com/c360/trajstream/codec"
)

// Cache errors
var (
	ErrFrameTooLarge = stderrors.New("frame larger than cache capacity")
	ErrInvalidSize   = stderrors.New("invalid cache size")
)

// UpdateKind describes a structural change of the cache.
type UpdateKind int

// Update kinds.
const (
	UpdateAdded UpdateKind = iota
	UpdateReplaced
	UpdateEvicted
	UpdateCleared
)

// String returns the update kind name
func (k UpdateKind) String() string {
	switch k {
	case UpdateAdded:
		return "added"
	case UpdateReplaced:
		return "replaced"
	case UpdateEvicted:
		return "evicted"
	case UpdateCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Update is passed to the update callback after every structural mutation.
type Update struct {
	Kind        UpdateKind
	FrameNumber int
	Size        int
	NumFrames   int
}

// UpdateCallback receives cache updates. It is invoked without the cache
// lock held and may call back into the cache.
type UpdateCallback func(Update)

// EvictCallback is called with every frame evicted for capacity.
type EvictCallback func(frame codec.Frame)

// noFrame is returned by number and time accessors of an empty cache.
const noFrame = -1
