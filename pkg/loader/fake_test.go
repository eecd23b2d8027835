package loader

import (
	"net/http"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/replicate/cacheplayer/pkg/transport"
)

type fakeTask struct {
	id        transport.TaskID
	req       transport.Request
	cancelled bool
	done      bool
}

// fakeTransport records sessions and lets a test drive every callback by hand.
type fakeTransport struct {
	mu       sync.Mutex
	sessions []*fakeSession
}

func (t *fakeTransport) NewSession(d transport.Delegate) transport.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &fakeSession{delegate: d, nextID: 1}
	t.sessions = append(t.sessions, s)
	return s
}

func (t *fakeTransport) sessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *fakeTransport) session(tb testing.TB) *fakeSession {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()
	require.Len(tb, t.sessions, 1)
	return t.sessions[0]
}

type fakeSession struct {
	delegate transport.Delegate

	mu          sync.Mutex
	nextID      transport.TaskID
	tasks       []*fakeTask
	invalidated bool
}

func (s *fakeSession) Start(req transport.Request) (transport.TaskID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalidated {
		return transport.NoTask, transport.ErrSessionInvalid
	}
	task := &fakeTask{id: s.nextID, req: req}
	s.nextID++
	s.tasks = append(s.tasks, task)
	return task.id, nil
}

func (s *fakeSession) Cancel(id transport.TaskID) {
	s.mu.Lock()
	task := s.find(id)
	notify := task != nil && !task.done
	if notify {
		task.cancelled = true
		task.done = true
	}
	s.mu.Unlock()
	if notify {
		s.delegate.OnComplete(id, transport.ErrCancelled)
	}
}

func (s *fakeSession) InvalidateAndCancel() {
	s.mu.Lock()
	s.invalidated = true
	var ids []transport.TaskID
	for _, task := range s.tasks {
		if !task.done {
			task.cancelled = true
			task.done = true
			ids = append(ids, task.id)
		}
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.delegate.OnComplete(id, transport.ErrCancelled)
	}
}

func (s *fakeSession) find(id transport.TaskID) *fakeTask {
	for _, task := range s.tasks {
		if task.id == id {
			return task
		}
	}
	return nil
}

func (s *fakeSession) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *fakeSession) task(tb testing.TB, id transport.TaskID) fakeTask {
	tb.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	task := s.find(id)
	require.NotNil(tb, task, "task %d was never started", id)
	return *task
}

func (s *fakeSession) lastTask() transport.TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return transport.NoTask
	}
	return s.tasks[len(s.tasks)-1].id
}

func (s *fakeSession) respond(id transport.TaskID, resp *transport.Response) {
	s.delegate.OnResponse(id, resp)
}

func (s *fakeSession) send(id transport.TaskID, b []byte) {
	s.delegate.OnData(id, append([]byte(nil), b...))
}

// sendChunks sends b in pieces of at most size bytes.
func (s *fakeSession) sendChunks(id transport.TaskID, b []byte, size int) {
	for len(b) > 0 {
		n := min(size, len(b))
		s.send(id, b[:n])
		b = b[n:]
	}
}

func (s *fakeSession) complete(id transport.TaskID, err error) {
	s.mu.Lock()
	task := s.find(id)
	if task != nil {
		task.done = true
	}
	s.mu.Unlock()
	s.delegate.OnComplete(id, err)
}

func okResponse(length int64) *transport.Response {
	header := http.Header{}
	header.Set("Content-Type", "video/mp4")
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	header.Set("Accept-Ranges", "bytes")
	return &transport.Response{StatusCode: http.StatusOK, Header: header, ContentLength: length}
}

type recordingEvents struct {
	mu       sync.Mutex
	progress [][2]int64
	finished []string
	failed   []error
}

func (e *recordingEvents) DownloadProgress(bytesSoFar, bytesExpected int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = append(e.progress, [2]int64{bytesSoFar, bytesExpected})
}

func (e *recordingEvents) DownloadFinished(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = append(e.finished, path)
}

func (e *recordingEvents) DownloadFailed(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, err)
}

func (e *recordingEvents) failures() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.failed...)
}

func (e *recordingEvents) finishes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.finished...)
}

// bridgeState is a consistent view of the engine state, taken on the queue.
type bridgeState struct {
	pending  int
	buffered int
	disk     int64
	received int64
	closed   bool
}

func (b *Bridge) state() bridgeState {
	var s bridgeState
	b.queue.Do(func() {
		s = bridgeState{
			pending:  len(b.coord.pending),
			buffered: len(b.coord.buffer),
			disk:     b.coord.store.Size(),
			received: b.coord.received,
			closed:   b.coord.closed,
		}
	})
	return s
}

// drain waits until every callback submitted so far has run.
func (b *Bridge) drain() {
	b.queue.Do(func() {})
}

func asset(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}
