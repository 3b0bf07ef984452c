// Package errors provides standardized error handling for trajstream components.
// It includes error classification, the domain error kinds raised by the codec,
// sources and cache, and helper functions for consistent error wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors, typically from the transport
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error kinds. Every error produced by the pipeline matches exactly one of
// these through errors.Is.
var (
	// ErrFormat reports a malformed container: bad signature, bad table of
	// contents, missing or duplicated spatial block, undecodable JSON block.
	ErrFormat = errors.New("format error")
	// ErrParse reports a malformed frame or flat agent record.
	ErrParse = errors.New("parse error")
	// ErrProtocol reports an unexpected message from a simulator.
	ErrProtocol = errors.New("protocol error")
	// ErrConnection reports a transport failure.
	ErrConnection = errors.New("connection error")
	// ErrCacheConsistency reports a broken frame cache invariant.
	ErrCacheConsistency = errors.New("cache consistency error")
)

// Standard error variables for common conditions
var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("already started")
	ErrAborted        = errors.New("source aborted")
	ErrShuttingDown   = errors.New("shutting down")

	// Connection and networking errors
	ErrNoConnection   = errors.New("no connection available")
	ErrConnectionLost = errors.New("connection lost")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification and, optionally,
// its domain kind.
type ClassifiedError struct {
	Class     ErrorClass
	Kind      error
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Is reports whether target is the kind of this error.
func (ce *ClassifiedError) Is(target error) bool {
	return ce.Kind != nil && target == ce.Kind
}

// IsFormat reports whether err is a container format error
func IsFormat(err error) bool { return err != nil && errors.Is(err, ErrFormat) }

// IsParse reports whether err is a frame or record parse error
func IsParse(err error) bool { return err != nil && errors.Is(err, ErrParse) }

// IsProtocol reports whether err is a simulator protocol error
func IsProtocol(err error) bool { return err != nil && errors.Is(err, ErrProtocol) }

// IsConnection reports whether err is a transport error
func IsConnection(err error) bool { return err != nil && errors.Is(err, ErrConnection) }

// IsCacheConsistency reports whether err is a cache invariant violation
func IsCacheConsistency(err error) bool { return err != nil && errors.Is(err, ErrCacheConsistency) }

// IsTransient checks if an error is transient
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"unavailable",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	if errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	fatalPatterns := []string{
		"fatal",
		"panic",
		"corrupted",
		"out of memory",
	}

	for _, pattern := range fatalPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	return errors.As(err, &ce) && ce.Class == ErrorInvalid
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsTransient(err) {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	return ErrorTransient
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	return wrapClassified(ErrorTransient, nil, err, component, method, action)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	return wrapClassified(ErrorFatal, nil, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, nil, err, component, method, action)
}

// WrapFormat wraps a container format failure. Format errors are invalid input.
func WrapFormat(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, ErrFormat, err, component, method, action)
}

// WrapParse wraps a frame or record parse failure.
func WrapParse(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, ErrParse, err, component, method, action)
}

// WrapProtocol wraps an unexpected simulator message.
func WrapProtocol(err error, component, method, action string) error {
	return wrapClassified(ErrorInvalid, ErrProtocol, err, component, method, action)
}

// WrapConnection wraps a transport failure. Connection errors are transient
// but never retried by the pipeline itself.
func WrapConnection(err error, component, method, action string) error {
	return wrapClassified(ErrorTransient, ErrConnection, err, component, method, action)
}

// WrapCacheConsistency wraps a cache invariant violation.
func WrapCacheConsistency(err error, component, method, action string) error {
	return wrapClassified(ErrorFatal, ErrCacheConsistency, err, component, method, action)
}

func wrapClassified(class ErrorClass, kind, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	ce := newClassified(class, wrappedErr, component, method, wrappedErr.Error())
	ce.Kind = kind
	return ce
}
