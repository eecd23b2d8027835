package loader

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedRequest = errors.New("loader: request asks for neither content information nor data")
	ErrClosed             = errors.New("loader: closed")
)

// StatusError reports an HTTP error status from the origin.
type StatusError struct {
	StatusCode int
}

func ErrUnexpectedHTTPStatus(statusCode int) error {
	return &StatusError{StatusCode: statusCode}
}

var _ error = &StatusError{}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed downloading asset: response status code %d", e.StatusCode)
}

// SizeMismatchError reports a finished download whose size differs from the announced length.
type SizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("failed downloading asset: wrong file size, expected %d, actual %d", e.Expected, e.Actual)
}

// BelowMinimumError reports a finished download smaller than the configured minimum.
type BelowMinimumError struct {
	Minimum int64
	Actual  int64
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("failed downloading asset: file size %d is smaller than minimum expected size %d", e.Actual, e.Minimum)
}
