package buffer

import (
	stderrors "errors"
)

// ErrClosed is returned by writes to, and blocking reads from, a closed buffer.
var ErrClosed = stderrors.New("buffer closed")

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest

	// Block causes writes to wait until space is available.
	Block
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	default:
		return "Unknown"
	}
}

// DropCallback is called with every item dropped by the overflow policy
// or by Clear.
type DropCallback[T any] func(item T)
