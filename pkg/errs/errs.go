// Package errs defines the error-kind taxonomy shared across the tuner:
// configuration failures, privileged-access failures, missing collaborators,
// single-tick transient glitches, and invariant violations.
package errs

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies a failure the way the control loop's policy distinguishes
// them (spec §7): some abort startup, some are logged and masked, one is
// fatal and triggers shutdown-and-restore.
type Kind int

const (
	// ConfigurationError covers bad flags, a missing bandwidth target, or no
	// E-cores found.
	ConfigurationError Kind = iota
	// PermissionDenied covers MSR access refused by the kernel or filesystem.
	PermissionDenied
	// NotAvailable covers an absent bandwidth oracle or collaborator.
	NotAvailable
	// TransientIO covers a single-tick MSR or PMU read glitch.
	TransientIO
	// Fatal covers a broken invariant; triggers MSR restore and exit.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case ConfigurationError:
		return "ConfigurationError"
	case PermissionDenied:
		return "PermissionDenied"
	case NotAvailable:
		return "NotAvailable"
	case TransientIO:
		return "TransientIO"
	case Fatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with its Kind, optionally carrying a
// captured stack trace (only worth paying for on startup/permission paths,
// not on the per-tick hot path).
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a plain Error of the given Kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: fmt.Errorf(format, args...)}
}

// WithStack builds an Error of the given Kind, capturing a stack trace on
// the wrapped cause. Reserved for startup/permission diagnostics.
func WithStack(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: pkgerrors.WithStack(cause)}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
