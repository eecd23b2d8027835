package loader

import (
	"io"

	"github.com/google/uuid"

	"github.com/replicate/cacheplayer/pkg/logging"
	"github.com/replicate/cacheplayer/pkg/storage"
	"github.com/replicate/cacheplayer/pkg/transport"
	"github.com/replicate/cacheplayer/pkg/workqueue"
)

// Bridge connects a player's loading requests to one progressive download. The first accepted request starts a
// full-file fetch that fills store; requests the store cannot answer yet get their own ranged fetch. All state
// lives on a private serial queue, so the exported methods are safe for concurrent use.
type Bridge struct {
	queue *workqueue.Queue
	coord *coordinator
	store storage.Storage
}

var _ Loader = &Bridge{}

func NewBridge(url string, headers map[string]string, store storage.Storage, t transport.Transport, cfg Config, events Events) *Bridge {
	if events == nil {
		events = nopEvents{}
	}
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}

	queue := workqueue.New(workqueue.DefaultDepth)
	coord := &coordinator{
		url:          url,
		headers:      copied,
		cfg:          cfg.withDefaults(),
		store:        store,
		transport:    t,
		events:       events,
		fullFileTask: transport.NoTask,
		pending:      make(map[transport.TaskID]*pendingRequest),
		logger: logging.Component("loader").With().
			Str("session", uuid.NewString()).
			Str("url", url).
			Logger(),
	}
	coord.delegate = &queuedDelegate{queue: queue, coord: coord}

	return &Bridge{queue: queue, coord: coord, store: store}
}

// Accept hands req to the engine. A request for a range already on disk is answered before Accept returns.
// Requests offered after Close are finished with ErrClosed.
func (b *Bridge) Accept(req LoadingRequest) bool {
	accepted := false
	if b.queue.Do(func() { accepted = b.coord.accept(req) }) {
		return accepted
	}
	if req.ContentInformation() == nil && req.Data() == nil {
		return false
	}
	req.Finish(ErrClosed)
	return true
}

func (b *Bridge) Cancel(req LoadingRequest) {
	b.queue.Do(func() { b.coord.cancel(req) })
}

// Close cancels every fetch, finishes every pending request without an error and deletes the cache file unless the
// download completed. The bridge accepts no work afterwards.
func (b *Bridge) Close() error {
	b.queue.Do(func() {
		b.coord.close()
		b.queue.Stop()
	})
	if closer, ok := b.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Terminate cancels every fetch for process shutdown. Pending requests and buffered bytes are left as they are;
// an incomplete cache file is still deleted.
func (b *Bridge) Terminate() {
	b.queue.Do(b.coord.terminate)
}

// Complete reports whether the download finished and passed verification.
func (b *Bridge) Complete() bool {
	complete := false
	b.queue.Do(func() { complete = b.coord.complete })
	return complete
}

// ContentInfo returns the first classified response, if one has arrived.
func (b *Bridge) ContentInfo() (ContentInfo, bool) {
	var (
		info ContentInfo
		ok   bool
	)
	b.queue.Do(func() {
		if b.coord.snapshot != nil {
			info, ok = *b.coord.snapshot, true
		}
	})
	return info, ok
}

func (b *Bridge) Path() string {
	return b.store.Path()
}

// queuedDelegate moves transport callbacks onto the bridge's queue.
type queuedDelegate struct {
	queue *workqueue.Queue
	coord *coordinator
}

func (d *queuedDelegate) OnResponse(id transport.TaskID, resp *transport.Response) {
	d.queue.Submit(func() { d.coord.onResponse(id, resp) })
}

func (d *queuedDelegate) OnData(id transport.TaskID, b []byte) {
	d.queue.Submit(func() { d.coord.onData(id, b) })
}

func (d *queuedDelegate) OnComplete(id transport.TaskID, err error) {
	d.queue.Submit(func() { d.coord.onComplete(id, err) })
}
