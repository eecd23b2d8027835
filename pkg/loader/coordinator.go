package loader

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/replicate/cacheplayer/pkg/storage"
	"github.com/replicate/cacheplayer/pkg/transport"
)

// coordinator owns the download session of one asset: the full-file task, the ranged tasks of pending requests,
// the in-memory buffer and the disk cache. Every method runs on the bridge's serial queue; nothing here is
// touched from any other goroutine.
type coordinator struct {
	url       string
	headers   map[string]string
	cfg       Config
	store     storage.Storage
	transport transport.Transport
	events    Events
	delegate  transport.Delegate
	logger    zerolog.Logger

	session          transport.Session
	fullFileTask     transport.TaskID
	fullFileResponse *transport.Response
	pending          map[transport.TaskID]*pendingRequest
	snapshot         *ContentInfo
	startTime        time.Time

	// buffer holds full-file bytes not yet on disk; len(buffer) + store.Size() == received
	buffer   []byte
	received int64

	complete bool
	closed   bool
	failure  error
	// badStatus is set when the full-file response carries an error status; its body is never cached
	badStatus error
}

func (c *coordinator) startSessionIfNeeded() {
	if c.session != nil || c.closed {
		return
	}
	if size := c.store.Size(); size > 0 {
		// the full-file task starts at offset 0, leftovers would be duplicated
		c.logger.Debug().Int64("size", size).Msg("discarding stale cache content")
		if err := c.store.Delete(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to discard stale cache content")
		}
	}

	c.session = c.transport.NewSession(c.delegate)
	header := http.Header{}
	for key, value := range c.headers {
		header.Set(key, value)
	}
	id, err := c.session.Start(transport.Request{URL: c.url, Header: header})
	if err != nil {
		c.downloadFailed(fmt.Errorf("failed to start download: %w", err))
		return
	}
	c.fullFileTask = id
	c.startTime = time.Now()
	c.logger.Debug().Int64("task", int64(id)).Msg("download started")
}

func (c *coordinator) accept(req LoadingRequest) bool {
	c.startSessionIfNeeded()

	p, err := newPendingRequest(c.url, c.headers, req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("rejected loading request")
		return false
	}
	if c.closed {
		req.Finish(c.closedError())
		return true
	}

	switch p.kind {
	case pendingContentInfo:
		c.startAndRegister(p)
	case pendingData:
		if p.remaining == 0 {
			p.finishLoading(nil)
			return true
		}
		if c.badStatus != nil {
			p.finishLoading(c.badStatus)
			return true
		}
		if c.hasSufficientCachedData(p.offset, p.remaining) {
			c.logger.Trace().Int64("offset", p.offset).Int64("length", p.remaining).Msg("serving from cache")
			serveCachedData(c.store, p, c.cfg.ReadDataLimit, c.logger)
			return true
		}
		c.startAndRegister(p)
	}
	return true
}

func (c *coordinator) startAndRegister(p *pendingRequest) {
	if err := p.startTask(c.session); err != nil {
		c.logger.Warn().Err(err).Stringer("kind", p.kind).Msg("failed to start task")
		p.finishLoading(err)
		return
	}
	c.pending[p.taskID] = p
	c.logger.Trace().Int64("task", int64(p.taskID)).Stringer("kind", p.kind).Msg("registered pending request")
}

func (c *coordinator) cancel(req LoadingRequest) {
	for id, p := range c.pending {
		if p.request != req {
			continue
		}
		p.cancelTask(c.session)
		delete(c.pending, id)
		c.logger.Trace().Int64("task", int64(id)).Msg("pending request cancelled")
		return
	}
}

func (c *coordinator) hasSufficientCachedData(offset, length int64) bool {
	return c.store.Size() >= offset+length
}

func (c *coordinator) onResponse(id transport.TaskID, resp *transport.Response) {
	if c.closed {
		return
	}
	info := ClassifyResponse(resp)

	if id == c.fullFileTask {
		c.fullFileResponse = resp
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Int64("expected", info.ContentLength).
			Str("content_type", info.ContentType).
			Msg("download response")
		if resp.StatusCode >= http.StatusBadRequest {
			c.rejectDataRequests(ErrUnexpectedHTTPStatus(resp.StatusCode))
			return
		}
		c.setSnapshot(info)
		return
	}

	p, ok := c.pending[id]
	if !ok {
		return
	}
	if resp.StatusCode >= http.StatusBadRequest {
		delete(c.pending, id)
		p.finishLoading(ErrUnexpectedHTTPStatus(resp.StatusCode))
		p.cancelTask(c.session)
		return
	}
	if p.kind == pendingContentInfo {
		p.fillInContentInformation(info)
		c.setSnapshot(info)
	}
}

func (c *coordinator) onData(id transport.TaskID, b []byte) {
	if c.closed {
		return
	}
	if id == c.fullFileTask {
		c.receiveFullFileData(b)
		return
	}
	p, ok := c.pending[id]
	if !ok || p.isCancelled() {
		return
	}
	// ranged bytes were asked for, so they go straight to the request
	p.respond(b)
}

func (c *coordinator) receiveFullFileData(b []byte) {
	if c.badStatus != nil {
		return
	}
	c.buffer = append(c.buffer, b...)
	c.received += int64(len(b))

	if len(c.buffer) >= c.cfg.DownloadBufferLimit {
		if err := c.flush(); err != nil {
			c.downloadFailed(err)
			return
		}
		c.serveWaitingRequests()
	}

	c.events.DownloadProgress(c.store.Size()+int64(len(c.buffer)), c.expectedLength())
}

// rejectDataRequests fails every pending and future data request with err. Content information requests carry on
// with their own tasks.
func (c *coordinator) rejectDataRequests(err error) {
	c.badStatus = err
	ids := make([]transport.TaskID, 0, len(c.pending))
	for id, p := range c.pending {
		if p.kind == pendingData {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		p := c.pending[id]
		delete(c.pending, id)
		p.finishLoading(err)
		p.cancelTask(c.session)
	}
}

func (c *coordinator) onComplete(id transport.TaskID, err error) {
	if c.closed {
		return
	}
	if err != nil && transport.IsCancellation(err) {
		c.logger.Trace().Int64("task", int64(id)).Msg("task cancelled")
		return
	}

	if id == c.fullFileTask {
		if err != nil {
			c.downloadFailed(err)
			return
		}
		c.completeDownload()
		return
	}

	p, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	if err != nil {
		c.logger.Debug().Err(err).Int64("task", int64(id)).Stringer("kind", p.kind).Msg("ranged request failed")
	}
	p.finishLoading(err)
}

// flush appends the whole buffer to disk.
func (c *coordinator) flush() error {
	if len(c.buffer) == 0 {
		return nil
	}
	err := c.store.Append(c.buffer)
	c.buffer = c.buffer[:0]
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// serveWaitingRequests answers every pending data request that the disk cache now fully covers. The request's
// ranged task becomes redundant and is cancelled.
func (c *coordinator) serveWaitingRequests() {
	ids := make([]transport.TaskID, 0, len(c.pending))
	for id, p := range c.pending {
		if p.kind == pendingData && !p.isCancelled() && c.hasSufficientCachedData(p.offset, p.remaining) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		p := c.pending[id]
		delete(c.pending, id)
		serveCachedData(c.store, p, c.cfg.ReadDataLimit, c.logger)
		p.cancelTask(c.session)
	}
}

func (c *coordinator) completeDownload() {
	if err := c.flush(); err != nil {
		c.downloadFailed(err)
		return
	}
	size := c.store.Size()

	if err := Verify(c.fullFileResponse, size, c.cfg); err != nil {
		// the bytes are all there, so the file is kept for inspection
		c.logger.Error().Err(err).Int64("size", size).Msg("download verification failed")
		c.teardown(err, true, false)
		c.events.DownloadFailed(err)
		return
	}

	c.complete = true
	c.serveWaitingRequests()

	elapsed := time.Since(c.startTime)
	throughput := fmt.Sprintf("%s/s", humanize.Bytes(uint64(float64(size)/elapsed.Seconds())))
	c.logger.Info().
		Str("dest", c.store.Path()).
		Str("size", humanize.Bytes(uint64(size))).
		Str("elapsed", fmt.Sprintf("%.3fs", elapsed.Seconds())).
		Str("throughput", throughput).
		Msg("Complete")

	c.events.DownloadFinished(c.store.Path())
}

func (c *coordinator) downloadFailed(err error) {
	c.logger.Error().Err(err).Msg("download failed")
	c.teardown(err, true, !c.complete)
	c.events.DownloadFailed(err)
}

// teardown invalidates the session. With resetData the buffer is dropped and every pending request is finished
// with cause. With removeFile the disk cache is deleted.
func (c *coordinator) teardown(cause error, resetData, removeFile bool) {
	if c.session != nil {
		c.session.InvalidateAndCancel()
	}
	c.closed = true
	if c.failure == nil {
		c.failure = cause
	}

	if resetData {
		c.buffer = nil
		ids := make([]transport.TaskID, 0, len(c.pending))
		for id := range c.pending {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			c.pending[id].finishLoading(cause)
			delete(c.pending, id)
		}
	}

	if removeFile {
		if err := c.store.Delete(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to delete incomplete cache file")
		} else {
			c.logger.Debug().Str("path", c.store.Path()).Msg("deleted incomplete cache file")
		}
	}
	c.received = c.store.Size() + int64(len(c.buffer))
}

func (c *coordinator) close() {
	c.teardown(nil, true, !c.complete)
}

func (c *coordinator) terminate() {
	c.teardown(nil, false, !c.complete)
}

func (c *coordinator) closedError() error {
	if c.failure != nil {
		return c.failure
	}
	return ErrClosed
}

func (c *coordinator) setSnapshot(info ContentInfo) {
	if c.snapshot != nil {
		return
	}
	c.snapshot = &info
}

func (c *coordinator) expectedLength() int64 {
	if c.fullFileResponse != nil {
		return expectedContentLength(c.fullFileResponse)
	}
	if c.snapshot != nil {
		return c.snapshot.ContentLength
	}
	return -1
}

// serveCachedData answers a data request from disk: it reads at most readLimit bytes at the cursor, delivers
// them, and repeats until the request has everything or the disk has nothing more to give. A failed read ends the
// request without an error; the player sees a short response.
func serveCachedData(store storage.Storage, p *pendingRequest, readLimit int, logger zerolog.Logger) {
	for p.remaining > 0 {
		available := store.Size() - p.offset
		if available <= 0 {
			break
		}
		n := min(available, p.remaining, int64(readLimit))
		b, err := store.ReadRange(p.offset, n)
		if err != nil {
			logger.Warn().Err(err).Int64("offset", p.offset).Int64("length", n).Msg("cache read failed, truncating response")
			break
		}
		p.respond(b)
	}
	p.finishLoading(nil)
}
