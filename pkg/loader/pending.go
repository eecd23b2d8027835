package loader

import (
	"fmt"
	"net/http"

	"github.com/replicate/cacheplayer/pkg/transport"
)

type pendingKind int

const (
	pendingContentInfo pendingKind = iota
	pendingData
)

func (k pendingKind) String() string {
	if k == pendingContentInfo {
		return "content-info"
	}
	return "data"
}

// pendingRequest is the engine's in-flight wrapper around one LoadingRequest. It owns at most one network task,
// whose id is its key in the coordinator's registry.
type pendingRequest struct {
	kind          pendingKind
	taskID        transport.TaskID
	url           string
	headers       map[string]string
	request       LoadingRequest
	didCancelTask bool

	// cursor of a data request: next byte wanted and how many are still missing
	offset    int64
	remaining int64
}

// newPendingRequest picks the variant from the request's shape. Content information wins when both are present.
func newPendingRequest(url string, headers map[string]string, req LoadingRequest) (*pendingRequest, error) {
	p := &pendingRequest{
		taskID:  transport.NoTask,
		url:     url,
		headers: headers,
		request: req,
	}
	switch {
	case req.ContentInformation() != nil:
		p.kind = pendingContentInfo
	case req.Data() != nil:
		data := req.Data()
		p.kind = pendingData
		p.offset = data.CurrentOffset()
		p.remaining = data.RequestedOffset + data.RequestedLength - p.offset
		if p.remaining < 0 {
			p.remaining = 0
		}
	default:
		return nil, ErrUnsupportedRequest
	}
	return p, nil
}

// transportRequest builds the fetch for this request. Custom headers are applied after the computed Range
// header, so a caller supplied Range replaces it.
func (p *pendingRequest) transportRequest() transport.Request {
	header := http.Header{}
	if data := p.request.Data(); data != nil && data.RequestedLength > 0 {
		lowerBound := data.RequestedOffset
		upperBound := lowerBound + data.RequestedLength - 1
		header.Set("Range", fmt.Sprintf("bytes=%d-%d", lowerBound, upperBound))
	}
	for key, value := range p.headers {
		header.Set(key, value)
	}
	return transport.Request{URL: p.url, Header: header}
}

// startTask starts the network task and records its id.
func (p *pendingRequest) startTask(session transport.Session) error {
	id, err := session.Start(p.transportRequest())
	if err != nil {
		return err
	}
	p.taskID = id
	return nil
}

// cancelTask stops the network task, if any, and finishes the loading request without an error unless the
// player already cancelled it or it is finished. Finishing keeps the player from waiting on a withdrawn request.
func (p *pendingRequest) cancelTask(session transport.Session) {
	if p.taskID != transport.NoTask && session != nil {
		session.Cancel(p.taskID)
	}
	if !p.request.IsCancelled() && !p.request.IsFinished() {
		p.finishLoading(nil)
	}
	p.didCancelTask = true
}

func (p *pendingRequest) isCancelled() bool {
	return p.request.IsCancelled() || p.didCancelTask
}

func (p *pendingRequest) finishLoading(err error) {
	p.request.Finish(err)
}

func (p *pendingRequest) fillInContentInformation(info ContentInfo) {
	if req := p.request.ContentInformation(); req != nil {
		req.Fill(info)
	}
}

// respond delivers bytes for the cursor position and shrinks the cursor. Bytes beyond the requested range are
// dropped. It returns how many bytes were delivered.
func (p *pendingRequest) respond(b []byte) int64 {
	data := p.request.Data()
	if p.kind != pendingData || data == nil || p.remaining <= 0 {
		return 0
	}
	if int64(len(b)) > p.remaining {
		b = b[:p.remaining]
	}
	data.Respond(b)
	n := int64(len(b))
	p.offset += n
	p.remaining -= n
	return n
}
