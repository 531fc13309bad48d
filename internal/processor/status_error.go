package processor

import (
	"fmt"
)

// Status types
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusWarning = "warning"
	StatusSkipped = "skipped"
)

// StatusError is the outcome of processing one record
type StatusError interface {
	Error() string
	Status() string
	Message() string
}

type statusError struct {
	status  string
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %s", e.status, e.message)
}

func (e *statusError) Status() string {
	return e.status
}

func (e *statusError) Message() string {
	return e.message
}

func NewSuccessError(message string) StatusError {
	return &statusError{status: StatusSuccess, message: message}
}

func NewFailureError(err error) StatusError {
	return &statusError{status: StatusFailure, message: err.Error()}
}

func NewWarningError(message string) StatusError {
	return &statusError{status: StatusWarning, message: message}
}

func NewSkippedError(message string) StatusError {
	return &statusError{status: StatusSkipped, message: message}
}

// Counts tallies record outcomes for one poll
type Counts struct {
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Warning int `json:"warning"`
	Failure int `json:"failure"`
}

func (c *Counts) Add(err StatusError) {
	if err == nil {
		c.Success++
		return
	}
	switch err.Status() {
	case StatusSuccess:
		c.Success++
	case StatusSkipped:
		c.Skipped++
	case StatusWarning:
		c.Warning++
	default:
		c.Failure++
	}
}

func (c Counts) Total() int {
	return c.Success + c.Skipped + c.Warning + c.Failure
}
