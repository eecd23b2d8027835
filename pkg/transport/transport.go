package transport

import (
	"context"
	"errors"
	"net/http"
)

// TaskID identifies one fetch within a session.
type TaskID int64

// NoTask is the id of a request that has no network task yet.
const NoTask TaskID = -1

var (
	// ErrCancelled is reported through OnComplete for tasks stopped by Cancel or InvalidateAndCancel.
	ErrCancelled      = errors.New("transport: task cancelled")
	ErrSessionInvalid = errors.New("transport: session invalidated")
)

// IsCancellation reports whether err only says that a task was cancelled on purpose.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// Request describes one fetch. Header carries the Range header, if any, and caller supplied headers.
type Request struct {
	URL    string
	Header http.Header
}

// Response is the header part of a fetch result.
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64
}

// Delegate receives the events of every task started in a session. For a given task the calls arrive in order:
// at most one OnResponse, any number of OnData, then exactly one OnComplete. Calls for different tasks may
// interleave and arrive on arbitrary goroutines.
type Delegate interface {
	OnResponse(id TaskID, resp *Response)
	// OnData hands over b; the transport does not touch it afterwards.
	OnData(id TaskID, b []byte)
	OnComplete(id TaskID, err error)
}

// Session groups the tasks of one asset so they can be torn down together.
type Session interface {
	// Start begins a fetch and returns its id. Events for the task go to the session's delegate.
	Start(req Request) (TaskID, error)
	// Cancel stops one task; its OnComplete reports ErrCancelled.
	Cancel(id TaskID)
	// InvalidateAndCancel cancels every task and refuses new ones.
	InvalidateAndCancel()
}

type Transport interface {
	NewSession(d Delegate) Session
}
