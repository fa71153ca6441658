package replicate

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to the user.
type Kind int

const (
	InvalidArguments Kind = iota + 1
	HostUnreachable
	AuthenticationFailed
	ObjectAlreadyExists
	ExternalCommandFailed
)

func (k Kind) String() string {
	switch k {
	case InvalidArguments:
		return "InvalidArguments"
	case HostUnreachable:
		return "HostUnreachable"
	case AuthenticationFailed:
		return "AuthenticationFailed"
	case ObjectAlreadyExists:
		return "ObjectAlreadyExists"
	case ExternalCommandFailed:
		return "ExternalCommandFailed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by every stage. Hint, when set, is the exact command that
// resolves the problem.
type Error struct {
	Kind Kind
	Op   string
	Hint string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// HintOf extracts the remediation hint of err, if any.
func HintOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}

func failed(op string, err error) *Error {
	return &Error{Kind: ExternalCommandFailed, Op: op, Err: err}
}
