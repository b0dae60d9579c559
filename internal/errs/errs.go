// Package errs implements the error taxonomy used across the daemon: a
// closed set of Kind values that every subsystem classifies its failures
// into, so callers can branch on "what kind of thing went wrong" without
// string-matching error messages.
package errs

import "errors"

// Kind classifies an error into one of a fixed set of categories. Every
// error that crosses a package boundary in this module carries a Kind.
type Kind int

const (
	Internal Kind = iota
	NotFound
	AlreadyExists
	InvalidArgument
	PreconditionFailed
	Unauthorized
	Timeout
	Cancelled
	PeerRejected
	RemoteProtocol
	LocalIO
	AgentDisconnected
	Blacklisted
	Configuration
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case InvalidArgument:
		return "invalid_argument"
	case PreconditionFailed:
		return "precondition_failed"
	case Unauthorized:
		return "unauthorized"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	case PeerRejected:
		return "peer_rejected"
	case RemoteProtocol:
		return "remote_protocol"
	case LocalIO:
		return "local_io"
	case AgentDisconnected:
		return "agent_disconnected"
	case Blacklisted:
		return "blacklisted"
	case Configuration:
		return "configuration"
	default:
		return "internal"
	}
}

// Error is the concrete error type carried across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that wraps an existing error as its cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the Kind from err, walking the Unwrap chain. Errors that
// are not *Error (or don't wrap one) classify as Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
