// Package vpnerr defines the error kinds surfaced by the ranking and
// supervision engine. Per-endpoint probe failures are not errors and never
// appear here.
package vpnerr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	// KindParse: the generated configuration held no usable directives.
	KindParse Kind = "PARSE"
	// KindIO: the template or an artifact could not be read or written.
	KindIO Kind = "IO"
	// KindProcess: the tunnel binary failed to launch.
	KindProcess Kind = "PROCESS"
	// KindVerification: geolocation lookup failed. Advisory only.
	KindVerification Kind = "VERIFICATION"
	// KindCancelled: the user interrupted an active tunnel.
	KindCancelled Kind = "CANCELLED"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoEndpoints is wrapped by Parse errors produced for empty input.
var ErrNoEndpoints = errors.New("no endpoint directives found")

func Parse(op string, cause error) *Error {
	return &Error{Kind: KindParse, Op: op, Err: cause}
}

func IO(op string, cause error) *Error {
	return &Error{Kind: KindIO, Op: op, Err: cause}
}

func Process(op string, cause error) *Error {
	return &Error{Kind: KindProcess, Op: op, Err: cause}
}

func Verification(op string, cause error) *Error {
	return &Error{Kind: KindVerification, Op: op, Err: cause}
}

func Cancelled(op string) *Error {
	return &Error{Kind: KindCancelled, Op: op, Err: context.Canceled}
}

// IsKind reports whether any error in err's chain is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
