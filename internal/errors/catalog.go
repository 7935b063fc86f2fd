// Package errors defines the error taxonomy shared by the runtime adapter,
// state store, and orchestrator, and its mapping onto HTTP status codes at
// the API edge.
package errors

import "fmt"

// Code is one of the seven error kinds the orchestrator and its
// dependencies can raise.
type Code string

const (
	CodeInvalidParameter Code = "InvalidParameter"
	CodeUnauthorized     Code = "Unauthorized"
	CodeNotFound         Code = "NotFound"
	CodeContainerStart   Code = "ContainerStart"
	CodeInternalRuntime  Code = "InternalRuntime"
	CodeInternalStore    Code = "InternalStore"
	CodeInternalError    Code = "InternalError"
)

// HTTPStatus maps a Code onto the status code the API returns for it.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidParameter:
		return 400
	case CodeUnauthorized:
		return 401
	case CodeNotFound:
		return 404
	case CodeContainerStart:
		return 400
	case CodeInternalRuntime, CodeInternalStore, CodeInternalError:
		return 500
	default:
		return 500
	}
}

// ContainerStartDetails carries the extra context ContainerStart errors
// must propagate to the caller: the container that failed to sustain
// running, its terminal status, and its captured logs.
type ContainerStartDetails struct {
	ContainerID string
	Status      string
	Logs        string
}

// Error is the structured error type every component in this repo raises
// instead of ad-hoc errors. Code drives the HTTP status mapping; Err is the
// wrapped cause for logging.
type Error struct {
	Code    Code
	Message string
	Err     error
	Details *ContainerStartDetails
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that carries an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NewContainerStart builds the ContainerStart error the runtime adapter
// raises when a container fails to sustain running.
func NewContainerStart(message, containerID, status, logs string) *Error {
	return &Error{
		Code:    CodeContainerStart,
		Message: message,
		Details: &ContainerStartDetails{ContainerID: containerID, Status: status, Logs: logs},
	}
}

// As extracts an *Error from err, following the standard unwrap chain.
func As(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
