package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/replicate/cacheplayer/pkg/client"
	"github.com/replicate/cacheplayer/pkg/loader"
	"github.com/replicate/cacheplayer/pkg/logging"
	"github.com/replicate/cacheplayer/pkg/storage"
	"github.com/replicate/cacheplayer/pkg/transport"
	"github.com/replicate/cacheplayer/pkg/workqueue"
)

var (
	ErrNotPrepared   = errors.New("player: item is not prepared")
	ErrUnknownLength = errors.New("player: content length is unknown")
	ErrRejected      = errors.New("player: loading request rejected")
)

// probeLength is how many leading bytes the content information request asks for alongside the metadata.
const probeLength = 2

type Options struct {
	// Headers are sent with every request for the asset.
	Headers map[string]string
	Config  loader.Config
	// Transport defaults to HTTP through a client built from Client.
	Transport transport.Transport
	Client    client.Options
	Observer  Observer
}

// Item is a playable asset. It reads from a complete cache file when there is one, and otherwise from a
// progressive download that fills the cache file while the item is played.
type Item struct {
	url      string
	path     string
	loader   loader.Loader
	local    *loader.FileLoader
	observer Observer
	notify   *workqueue.Queue
	logger   zerolog.Logger

	mu       sync.Mutex
	info     loader.ContentInfo
	prepared bool

	downloadOnce sync.Once
	downloadDone chan struct{}
	downloadErr  error
}

// New creates the item for url, cached at path. A non-empty file at path is taken as a complete earlier download
// and played without touching the network.
func New(url, path string, opts Options) (*Item, error) {
	store, err := storage.OpenFile(path)
	if err != nil {
		return nil, err
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}

	item := &Item{
		url:          url,
		path:         path,
		observer:     opts.Observer,
		notify:       workqueue.New(workqueue.DefaultDepth),
		logger:       logging.Component("player").With().Str("url", url).Logger(),
		downloadDone: make(chan struct{}),
	}

	if store.Size() > 0 {
		item.logger.Debug().Str("path", path).Int64("size", store.Size()).Msg("playing from cache")
		item.local = loader.NewFileLoader(store, opts.Config)
		item.loader = item.local
		item.resolveDownload(nil)
		return item, nil
	}

	t := opts.Transport
	if t == nil {
		t = transport.NewHTTP(client.NewHTTPClient(opts.Client), logging.Component("transport"))
	}
	item.loader = loader.NewBridge(url, opts.Headers, store, t, opts.Config, &itemEvents{item: item})
	return item, nil
}

func (i *Item) URL() string { return i.url }

func (i *Item) Path() string { return i.path }

// IsLocal reports whether the item plays from a complete cache file.
func (i *Item) IsLocal() bool { return i.local != nil }

// Prepare loads the content information. It notifies ReadyToPlay or FailedToPlay and returns the same outcome.
func (i *Item) Prepare(ctx context.Context) error {
	req := loader.NewContentInfoRequest(loader.NewDataRequest(0, probeLength, nil))
	err := i.await(ctx, req)
	if err == nil {
		info, filled := req.ContentInformation().Info()
		if !filled {
			err = fmt.Errorf("%w: no content information received", ErrNotPrepared)
		} else {
			i.mu.Lock()
			i.info = info
			i.prepared = true
			i.mu.Unlock()
		}
	}

	if err != nil {
		i.logger.Warn().Err(err).Msg("failed to prepare item")
		i.post(func() { i.observer.FailedToPlay(i, err) })
		return err
	}
	i.post(func() { i.observer.ReadyToPlay(i) })
	return nil
}

// ContentInfo returns what Prepare learned about the asset.
func (i *Item) ContentInfo() (loader.ContentInfo, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.info, i.prepared
}

func (i *Item) ReadAt(p []byte, off int64) (int, error) {
	return i.ReadAtContext(context.Background(), p, off)
}

// ReadAtContext reads len(p) bytes at off. Reads past the known end are cut short with io.EOF. A read that has to
// wait for the network notifies PlaybackStalled.
func (i *Item) ReadAtContext(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("player: negative offset %d", off)
	}
	want := int64(len(p))
	if info, ok := i.ContentInfo(); ok && info.ContentLength >= 0 {
		if off >= info.ContentLength {
			return 0, io.EOF
		}
		want = min(want, info.ContentLength-off)
	}
	if want == 0 {
		return 0, nil
	}

	sink := &sliceWriter{buf: p[:want]}
	req := loader.NewRequest(loader.NewDataRequest(off, want, sink))
	if err := i.await(ctx, req); err != nil {
		return int(req.Data().Delivered()), err
	}

	n := int(req.Data().Delivered())
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// NewReader returns a reader over the whole asset. The item has to be prepared and its length known.
func (i *Item) NewReader() (*io.SectionReader, error) {
	info, ok := i.ContentInfo()
	if !ok {
		return nil, ErrNotPrepared
	}
	if info.ContentLength < 0 {
		return nil, ErrUnknownLength
	}
	return io.NewSectionReader(i, 0, info.ContentLength), nil
}

// await hands req to the loader and waits for it to finish. When ctx ends first the request is withdrawn.
func (i *Item) await(ctx context.Context, req *loader.Request) error {
	if !i.loader.Accept(req) {
		return ErrRejected
	}

	select {
	case <-req.Done():
		return req.Err()
	default:
	}
	if req.Data() != nil && req.ContentInformation() == nil {
		i.post(func() { i.observer.PlaybackStalled(i) })
	}

	select {
	case <-req.Done():
		return req.Err()
	case <-ctx.Done():
		req.Cancel()
		i.loader.Cancel(req)
		return ctx.Err()
	}
}

// Done is closed once the download finished or failed. For a cached item it is closed from the start.
func (i *Item) Done() <-chan struct{} {
	return i.downloadDone
}

// Err is the download outcome, valid once Done is closed.
func (i *Item) Err() error {
	<-i.downloadDone
	return i.downloadErr
}

func (i *Item) resolveDownload(err error) {
	i.downloadOnce.Do(func() {
		i.downloadErr = err
		close(i.downloadDone)
	})
}

// Close stops the download and releases the cache file. Notifications already queued are still delivered.
func (i *Item) Close() error {
	err := i.loader.Close()
	i.resolveDownload(loader.ErrClosed)
	i.notify.Do(func() {})
	i.notify.Stop()
	return err
}

// Terminate is Close for a process that is about to exit. The cache file handle stays open until Close.
func (i *Item) Terminate() {
	i.loader.Terminate()
	i.resolveDownload(loader.ErrClosed)
	i.notify.Do(func() {})
	i.notify.Stop()
}

func (i *Item) post(fn func()) {
	i.notify.Submit(fn)
}

// itemEvents turns bridge events into observer notifications. The notification is queued before Done is closed.
type itemEvents struct {
	item *Item
}

// DownloadProgress is dropped while the observer is behind; a later update supersedes it.
func (e *itemEvents) DownloadProgress(bytesSoFar, bytesExpected int64) {
	e.item.notify.TrySubmit(func() { e.item.observer.DownloadProgress(e.item, bytesSoFar, bytesExpected) })
}

func (e *itemEvents) DownloadFinished(path string) {
	e.item.post(func() { e.item.observer.DownloadFinished(e.item, path) })
	e.item.resolveDownload(nil)
}

func (e *itemEvents) DownloadFailed(err error) {
	e.item.post(func() { e.item.observer.DownloadFailed(e.item, err) })
	e.item.resolveDownload(err)
}

// sliceWriter fills buf front to back.
type sliceWriter struct {
	buf []byte
	n   int
}

func (w *sliceWriter) Write(b []byte) (int, error) {
	copied := copy(w.buf[w.n:], b)
	w.n += copied
	if copied < len(b) {
		return copied, io.ErrShortWrite
	}
	return copied, nil
}
