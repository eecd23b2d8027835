package loader

import (
	"io"
	"sync"
)

// ContentInfo is what the player needs to know about an asset before reading it.
type ContentInfo struct {
	ContentType              string
	ContentLength            int64
	ByteRangeAccessSupported bool
}

// LoadingRequest is a player's pull request for asset metadata, a byte range, or both. A request exposing neither
// capability is not supported by the engine.
type LoadingRequest interface {
	ContentInformation() *ContentInfoRequest
	Data() *DataRequest
	IsCancelled() bool
	IsFinished() bool
	// Finish completes the request; err == nil means success. Only the first call has an effect.
	Finish(err error)
}

// ContentInfoRequest is filled in by the engine once the first response is classified.
type ContentInfoRequest struct {
	mu     sync.Mutex
	info   ContentInfo
	filled bool
}

func (r *ContentInfoRequest) Fill(info ContentInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = info
	r.filled = true
}

// Info returns the filled content information and whether it has been filled.
func (r *ContentInfoRequest) Info() (ContentInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info, r.filled
}

// DataRequest asks for RequestedLength bytes starting at RequestedOffset. Delivered bytes are written to the sink
// in order and advance CurrentOffset.
type DataRequest struct {
	RequestedOffset int64
	RequestedLength int64

	mu            sync.Mutex
	currentOffset int64
	sink          io.Writer
}

func NewDataRequest(offset, length int64, sink io.Writer) *DataRequest {
	return &DataRequest{
		RequestedOffset: offset,
		RequestedLength: length,
		currentOffset:   offset,
		sink:            sink,
	}
}

// Respond delivers b to the sink.
func (r *DataRequest) Respond(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink != nil {
		_, _ = r.sink.Write(b)
	}
	r.currentOffset += int64(len(b))
}

func (r *DataRequest) CurrentOffset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentOffset
}

// Delivered is the number of bytes responded so far.
func (r *DataRequest) Delivered() int64 {
	return r.CurrentOffset() - r.RequestedOffset
}

// Request is the LoadingRequest implementation used by players in this module.
type Request struct {
	info *ContentInfoRequest
	data *DataRequest

	mu        sync.Mutex
	cancelled bool
	finished  bool
	err       error
	finishes  int
	done      chan struct{}
}

var _ LoadingRequest = &Request{}

// NewContentInfoRequest asks for content information. A non-nil data request is attached as well, which is how a
// player probes the first bytes alongside the metadata.
func NewContentInfoRequest(data *DataRequest) *Request {
	return &Request{info: &ContentInfoRequest{}, data: data, done: make(chan struct{})}
}

func NewRequest(data *DataRequest) *Request {
	return &Request{data: data, done: make(chan struct{})}
}

func (r *Request) ContentInformation() *ContentInfoRequest { return r.info }

func (r *Request) Data() *DataRequest { return r.data }

func (r *Request) IsCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *Request) IsFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Cancel marks the request as withdrawn by the player. The engine still has to be told through Loader.Cancel.
func (r *Request) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
}

func (r *Request) Finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishes++
	if r.finished {
		return
	}
	r.finished = true
	r.err = err
	close(r.done)
}

// Done is closed when the request is finished.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Err is the error the request finished with.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// FinishCalls counts Finish calls, including the ignored ones.
func (r *Request) FinishCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishes
}
