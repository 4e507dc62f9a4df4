package zmailbox

import (
	"errors"
	"fmt"
)

// Well-known fault codes returned by the server.
const (
	FaultPermDenied     = "service.PERM_DENIED"
	FaultNoSuchFolder   = "mail.NO_SUCH_FOLDER"
	FaultNoSuchMessage  = "mail.NO_SUCH_MSG"
	FaultNoSuchContact  = "mail.NO_SUCH_CONTACT"
	FaultAuthExpired    = "service.AUTH_EXPIRED"
	FaultAuthRequired   = "service.AUTH_REQUIRED"
	FaultServiceFailure = "service.FAILURE"
)

// ErrMalformedNotification is wrapped by errors raised while applying a
// notification block whose structure cannot be interpreted.
var ErrMalformedNotification = errors.New("malformed notification")

// IOError reports that the server could not be reached, or that the
// connection broke before a complete response was read.
type IOError struct {
	Op  string
	URL string
	Err error
}

func (e *IOError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("zmailbox %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("zmailbox %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Fault is a well-formed error response from the server.
type Fault struct {
	Code   string
	Reason string
	// Request is the name of the request that failed.
	Request string
}

func (e *Fault) Error() string {
	if e.Request != "" {
		return fmt.Sprintf("zmailbox %s: %s (%s)", e.Request, e.Reason, e.Code)
	}
	return fmt.Sprintf("zmailbox: %s (%s)", e.Reason, e.Code)
}

// ClientError reports an invalid argument detected before anything is sent.
type ClientError struct {
	Code string
	Msg  string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("zmailbox: %s (%s)", e.Msg, e.Code)
}

// Client error codes.
const (
	ClientNoSuchTag      = "zclient.NO_SUCH_TAG"
	ClientInvalidRequest = "zclient.INVALID_REQUEST"
	ClientAuthExpired    = "zclient.AUTH_EXPIRED"
)

func newClientError(code, format string, args ...any) *ClientError {
	return &ClientError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedNotification, fmt.Sprintf(format, args...))
}

// IsIOError reports whether err is, or wraps, an *IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// IsFault reports whether err is, or wraps, a *Fault. When code is non-empty
// the fault must also carry that code.
func IsFault(err error, code string) bool {
	var f *Fault
	if !errors.As(err, &f) {
		return false
	}
	return code == "" || f.Code == code
}

// IsClientError reports whether err is, or wraps, a *ClientError.
func IsClientError(err error) bool {
	var c *ClientError
	return errors.As(err, &c)
}

// Retryable reports whether repeating the call that produced err might
// succeed. Only connectivity failures qualify; faults and client errors
// are deterministic.
func Retryable(err error) bool {
	return IsIOError(err)
}
