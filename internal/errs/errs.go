// Package errs defines the typed error kinds shared across the memory
// engine, so callers can branch on failure class without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and degradation decisions.
type Kind int

const (
	// Unknown is the zero value; never constructed deliberately.
	Unknown Kind = iota
	// InvalidInput marks a malformed request: unknown object type, empty
	// query, missing session.
	InvalidInput
	// NotFound marks an unknown id.
	NotFound
	// Conflict marks a supersedes cycle, duplicate hash in a unique
	// context, or a write conflict.
	Conflict
	// Cancelled marks a deadline or explicit cancel.
	Cancelled
	// Dependency marks embedder/extractor/tokenizer failure; fallback-safe
	// branches suppress and continue.
	Dependency
	// Storage marks a database or IO failure; fatal for the current call.
	Storage
	// PolicyHold marks a curator candidate held pending user resolution.
	PolicyHold
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Cancelled:
		return "cancelled"
	case Dependency:
		return "dependency"
	case Storage:
		return "storage"
	case PolicyHold:
		return "policy_hold"
	default:
		return "unknown"
	}
}

// ExitCode maps a Kind to the CLI exit-code contract: 0 success, 1 user
// error, 2 storage error, 3 cancelled.
func (k Kind) ExitCode() int {
	switch k {
	case InvalidInput, NotFound, Conflict, PolicyHold:
		return 1
	case Storage, Dependency:
		return 2
	case Cancelled:
		return 3
	default:
		return 1
	}
}

// Error is the tagged result type returned by library calls.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "store.CreateEvent"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a tagged Error.
func E(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, walking the chain. Returns Unknown if
// err is nil or carries no Kind.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
