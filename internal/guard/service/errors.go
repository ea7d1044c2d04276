package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service error into the user-safe taxonomy every
// operation surfaces. Raw internal errors never cross the boundary;
// they are wrapped as KindInternal.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindPermissionDenied   Kind = "permission_denied"
	KindInvalidArgument    Kind = "invalid_argument"
	KindFailedPrecondition Kind = "failed_precondition"
	KindNotFound           Kind = "not_found"
	KindResourceExhausted  Kind = "resource_exhausted"
	KindInternal           Kind = "internal"
)

// Error is the structured error returned by every service operation.
// Reason carries the single machine-readable rejection reason (e.g.
// "honeypot_filled"); Message is safe to show the caller.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match against the kind-only sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

func newError(kind Kind, reason, msg string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: msg}
}

func Unauthenticated(msg string) *Error {
	return newError(KindUnauthenticated, "", msg)
}

func PermissionDenied(reason, msg string) *Error {
	return newError(KindPermissionDenied, reason, msg)
}

func InvalidArgument(reason, msg string) *Error {
	return newError(KindInvalidArgument, reason, msg)
}

func FailedPrecondition(reason, msg string) *Error {
	return newError(KindFailedPrecondition, reason, msg)
}

func NotFound(msg string) *Error {
	return newError(KindNotFound, "", msg)
}

func ResourceExhausted(reason, msg string) *Error {
	return newError(KindResourceExhausted, reason, msg)
}

// Internal wraps an unexpected downstream failure. The cause is kept
// for logs; callers only see the generic message.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// anything that is not a service error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Reason
	}
	return ""
}
