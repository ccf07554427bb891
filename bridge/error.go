package bridge

import (
	stderrors "errors"

	"github.com/wippyai/opcore/errors"
)

// ErrClosed is returned by calls made after Shutdown.
var ErrClosed = stderrors.New("bridge closed")

// OpError is an op failure as the script sees it.
type OpError struct {
	cause   error
	Class   errors.Class `json:"class" cbor:"class"`
	Message string       `json:"message" cbor:"message"`
}

// NewOpError classifies err.
func NewOpError(err error) *OpError {
	var oe *OpError
	if stderrors.As(err, &oe) {
		return oe
	}
	return &OpError{
		Class:   errors.ClassOf(err),
		Message: errors.MessageOf(err),
		cause:   err,
	}
}

func (e *OpError) Error() string {
	return string(e.Class) + ": " + e.Message
}

func (e *OpError) Unwrap() error {
	return e.cause
}
