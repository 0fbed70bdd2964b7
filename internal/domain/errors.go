package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteError is any non-2xx response or network failure from the plan service.
type RemoteError struct {
	StatusCode  int
	StatusClass string
	// Code is the service's error code from the response envelope, if any.
	Code    string
	Message string
}

// CodeProjectNotFound marks a 404 about the project rather than a task.
const CodeProjectNotFound = "project_not_found"

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote %s: %s", e.StatusClass, e.Message)
	}
	return fmt.Sprintf("remote %s (%d): %s", e.StatusClass, e.StatusCode, e.Message)
}

// NewRemoteError classifies a status code. Zero means the request never got
// an answer.
func NewRemoteError(status int, message string) *RemoteError {
	class := "network"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	}
	return &RemoteError{StatusCode: status, StatusClass: class, Message: message}
}

// IsRemoteNotFound reports whether err carries a 404 from the plan service.
func IsRemoteNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}

// IsTaskNotFound reports a 404 that is not about the project itself.
func IsTaskNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound && re.Code != CodeProjectNotFound
}

// ValidationError is returned when an operation is invoked in a state that
// cannot serve it.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

type NotFoundError struct {
	TaskID string
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s not found in plan", e.TaskID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }
