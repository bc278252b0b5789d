// Package provenanceerr classifies the failures the provenance query engine
// and index builder can raise, following the taxonomy the archive service
// contract expects: input errors are user-visible, not-found is a valid
// empty result rather than an error, transient errors are retried, and
// corruption is a separate Kind that callers can classify on. Nothing in
// this module marks a corrupt file bad or skips it on later reads.
package provenanceerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry/propagation purposes.
type Kind int

const (
	KindInput Kind = iota
	KindNotFound
	KindTransient
	KindCorruption
	KindCancelled
	KindDeadlineExceeded
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindCorruption:
		return "corruption"
	case KindCancelled:
		return "cancelled"
	case KindDeadlineExceeded:
		return "deadline_exceeded"
	default:
		return "internal"
	}
}

// Error is a typed, wrapped failure carrying a Kind so callers can decide
// whether to retry, surface a gRPC status, or treat the result as empty.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error, wrapping cause with %w semantics.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Input wraps a malformed-input failure (e.g. an unparsable SWHID).
func Input(op string, cause error) *Error { return New(KindInput, op, cause) }

// Transient wraps a retryable storage failure.
func Transient(op string, cause error) *Error { return New(KindTransient, op, cause) }

// Corruption wraps an Elias-Fano/Parquet consistency failure.
func Corruption(op string, cause error) *Error { return New(KindCorruption, op, cause) }

// Internal wraps an invariant violation not fitting any other bucket.
func Internal(op string, cause error) *Error { return New(KindInternal, op, cause) }

// KindOf extracts the Kind of err, defaulting to KindInternal for
// unclassified errors so callers always get a meaningful bucket.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err represents a valid "no provenance found"
// outcome, which callers must render as an empty result rather than an
// error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
