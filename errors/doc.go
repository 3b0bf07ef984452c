// Package errors provides standardized error handling for trajstream.
//
// # Classification
//
// Errors carry one of three classes: Transient (transport trouble), Invalid
// (bad input or configuration) and Fatal (a broken invariant). The pipeline
// never retries on its own; the class is informational for callers.
//
// # Kinds
//
// On top of the class, pipeline errors carry a kind that callers match with
// the standard library:
//
//	ErrFormat            container signature, table of contents, block JSON
//	ErrParse             a binary frame or flat agent record
//	ErrProtocol          an unexpected simulator message
//	ErrConnection        transport failure
//	ErrCacheConsistency  frame cache invariant violated
//
// Format and parse errors are returned synchronously by decode calls.
// Connection and protocol errors arrive asynchronously as source events.
//
// # Wrapping
//
// All wrapping follows the pattern
//
//	"component.method: action failed: %w"
//
// For example:
//
//	return errors.WrapFormat(err, "codec", "DecodeContainer", "read table of contents")
//
// and the result satisfies errors.Is(err, errors.ErrFormat) as well as any
// sentinel inside err.
package errors
