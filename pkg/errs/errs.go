// Package errs defines the error taxonomy shared by every surface of the
// coordinator. Handlers classify failures once; each transport maps the kind
// to its own status vocabulary.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error independently of the surface that reports it.
type Kind int

const (
	Internal Kind = iota
	NotFound
	InvalidArgument
	AlreadyExists
	Unavailable
	Timeout
	PermissionDenied
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidArgument:
		return "invalid_argument"
	case AlreadyExists:
		return "already_exists"
	case Unavailable:
		return "unavailable"
	case Timeout:
		return "timeout"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "internal"
	}
}

// Error is a classified error. Use New or Wrap to construct one.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg == "" {
			return e.Err.Error()
		}
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a formatted message.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, keeping it reachable via errors.Unwrap.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind of an error, defaulting to Internal for
// unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error kind to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case InvalidArgument:
		return http.StatusBadRequest
	case AlreadyExists:
		return http.StatusConflict
	case Unavailable:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	case PermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// MPD ACK error codes, as defined by the protocol.
const (
	AckUnknown      = 0
	AckArg          = 2
	AckPassword     = 3
	AckPermission   = 4
	AckNoExist      = 50
	AckPlaylistLoad = 53
	AckExist        = 56
	AckSystem       = 55
)

// MPDAck maps an error kind to an MPD ACK code.
func MPDAck(err error) int {
	switch KindOf(err) {
	case NotFound:
		return AckNoExist
	case InvalidArgument:
		return AckArg
	case AlreadyExists:
		return AckExist
	case Unavailable, Timeout:
		return AckSystem
	case PermissionDenied:
		return AckPermission
	default:
		return AckUnknown
	}
}

// RPCCode maps an error kind to the wire code used by the binary RPC surface.
func RPCCode(err error) string {
	switch KindOf(err) {
	case NotFound:
		return "not_found"
	case InvalidArgument:
		return "invalid_argument"
	default:
		return "internal"
	}
}

// RetryBackoff is the schedule applied to transient engine failures before
// they are surfaced as Unavailable.
var RetryBackoff = []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, time.Second}

// Retry runs fn up to len(RetryBackoff)+1 times, sleeping between attempts.
// Non-transient errors (anything already classified other than Unavailable or
// Timeout) abort immediately.
func Retry(fn func() error) error {
	err := fn()
	for _, wait := range RetryBackoff {
		if err == nil {
			return nil
		}
		if k := KindOf(err); k != Unavailable && k != Timeout && k != Internal {
			return err
		}
		time.Sleep(wait)
		err = fn()
	}
	if err != nil {
		return Wrap(Unavailable, err, "retries exhausted")
	}
	return nil
}
