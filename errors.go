package minios

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DriverError is the error type returned by every layer of the storage stack.
// Kinds are compared with [errors.Is]; messages and causes can be attached
// without losing the kind.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type baseError string

const rootError = baseError("")

// Controller driver errors.
var ErrHardwareNotReady = rootError.WithMessage("Controller not initialized")
var ErrHardwareTimeout = rootError.WithMessage("Controller timed out")
var ErrSeekFailure = rootError.WithMessage("Seek failed")
var ErrIOFailure = rootError.WithMessage("Input/output error")

// File system errors.
var ErrMountFailure = rootError.WithMessage("File system not mounted")
var ErrNotFound = rootError.WithMessage("No such file or directory")
var ErrInvalidOffset = rootError.WithMessage("Invalid seek offset")
var ErrFileSystemCorrupted = rootError.WithMessage("Structure needs cleaning")
var ErrInvalidHandle = rootError.WithMessage("Bad file handle")

var ErrInvalidArgument = rootError.WithMessage("Invalid argument")

func (e baseError) Error() string {
	return string(e)
}

func (e baseError) WithMessage(message string) DriverError {
	return customError{
		message:       message,
		originalError: e,
	}
}

func (e baseError) Wrap(err error) DriverError {
	return customError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customError struct {
	message       string
	originalError error
}

func (e customError) Error() string {
	return e.message
}

func (e customError) WithMessage(message string) DriverError {
	return customError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

// Wrap returns a new error of the same kind with `err` attached as a cause.
// Both the receiver and `err` match with [errors.Is].
func (e customError) Wrap(err error) DriverError {
	return customError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customError) Unwrap() error {
	return e.originalError
}
