package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection lost", ErrConnectionLost, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid config", ErrInvalidConfig, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
		{"wrapped connection", WrapConnection(fmt.Errorf("eof"), "remote", "readLoop", "read"), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(ErrMissingConfig))
	assert.True(t, IsFatal(fmt.Errorf("index corrupted at block 3")))
	assert.True(t, IsFatal(WrapCacheConsistency(fmt.Errorf("loop"), "FrameCache", "Verify", "walk")))
	assert.False(t, IsFatal(ErrConnectionLost))
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsInvalid(fmt.Errorf("bad input")), "only classified errors are invalid")
	assert.True(t, IsInvalid(WrapFormat(fmt.Errorf("bad"), "codec", "DecodeContainer", "check signature")))
	assert.True(t, IsInvalid(WrapParse(fmt.Errorf("bad"), "codec", "DecodeFlatRecord", "read subpoints")))
	assert.False(t, IsInvalid(ErrConnectionLost))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorInvalid, Classify(WrapInvalid(fmt.Errorf("bad"), "config", "Validate", "check url")))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("something odd")))
}

func TestClassifiedError_NoMessage(t *testing.T) {
	inner := fmt.Errorf("inner")
	ce := &ClassifiedError{Class: ErrorInvalid, Err: inner}
	assert.Equal(t, "inner", ce.Error())
	assert.Same(t, inner, ce.Unwrap())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "c", "m", "a"))

	base := fmt.Errorf("boom")
	err := Wrap(base, "FrameCache", "AddFrame", "insert")
	assert.Equal(t, "FrameCache.AddFrame: insert failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))
}

func TestWrapKinds(t *testing.T) {
	base := fmt.Errorf("boom")
	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		kind  error
		class ErrorClass
		check func(error) bool
	}{
		{"format", WrapFormat, ErrFormat, ErrorInvalid, IsFormat},
		{"parse", WrapParse, ErrParse, ErrorInvalid, IsParse},
		{"protocol", WrapProtocol, ErrProtocol, ErrorInvalid, IsProtocol},
		{"connection", WrapConnection, ErrConnection, ErrorTransient, IsConnection},
		{"cache consistency", WrapCacheConsistency, ErrCacheConsistency, ErrorFatal, IsCacheConsistency},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.wrap(base, "comp", "Method", "act")
			require.Error(t, err)
			assert.True(t, errors.Is(err, test.kind))
			assert.True(t, errors.Is(err, base))
			assert.True(t, test.check(err))
			assert.Equal(t, "comp.Method: act failed: boom", err.Error())

			var ce *ClassifiedError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, test.class, ce.Class)
			assert.Equal(t, "comp", ce.Component)
			assert.Equal(t, "Method", ce.Operation)

			assert.Nil(t, test.wrap(nil, "comp", "Method", "act"))
		})
	}
}

func TestKindsAreDistinct(t *testing.T) {
	err := WrapFormat(fmt.Errorf("x"), "codec", "DecodeContainer", "decode")
	assert.False(t, IsParse(err))
	assert.False(t, IsProtocol(err))
	assert.False(t, IsConnection(err))
	assert.False(t, IsCacheConsistency(err))

	// kind survives further plain wrapping
	outer := Wrap(err, "playback", "Connect", "open file")
	assert.True(t, IsFormat(outer))
}

func TestWrapPlainClasses(t *testing.T) {
	base := fmt.Errorf("x")
	assert.True(t, IsTransient(WrapTransient(base, "a", "b", "c")))
	assert.True(t, IsInvalid(WrapInvalid(base, "a", "b", "c")))
	assert.True(t, IsFatal(WrapFatal(base, "a", "b", "c")))
	assert.False(t, IsFormat(WrapInvalid(base, "a", "b", "c")))
}
