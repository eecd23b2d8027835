package workqueue

import "sync"

// DefaultDepth is the queue depth used when New is given a non-positive depth.
const DefaultDepth = 256

// Queue takes work items and executes them serially, in strict FIFO order, on a single worker goroutine.
// Everything submitted to one Queue is totally ordered by submission time, so state touched only from queued work
// needs no further locking.
type Queue struct {
	queue chan *work
	done  chan struct{}

	mu      sync.Mutex
	stopped bool
}

type work struct {
	fn      func()
	started chan struct{}
}

func New(depth int) *Queue {
	if depth <= 0 {
		depth = DefaultDepth
	}
	q := &Queue{
		queue: make(chan *work, depth),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues w without waiting for it to run. It blocks while the queue is full and reports false if the
// queue has been stopped, in which case w will never run.
func (q *Queue) Submit(w func()) bool {
	return q.submit(&work{fn: w})
}

// TrySubmit enqueues w only if the queue has room. It never blocks and reports whether w was queued.
func (q *Queue) TrySubmit(w func()) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.queue <- &work{fn: w}:
		return true
	default:
		return false
	}
}

func (q *Queue) submit(w *work) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case <-q.done:
		return false
	case q.queue <- w:
		return true
	}
}

// Do enqueues w and waits until it has run. It reports false if the queue stopped before w could start.
// Do must not be called from work running on the same queue.
func (q *Queue) Do(w func()) bool {
	finished := make(chan struct{})
	item := &work{
		fn: func() {
			defer close(finished)
			w()
		},
		started: make(chan struct{}),
	}
	if !q.submit(item) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-q.done:
	}
	// once stopped, no further item can start, so started is final here
	q.mu.Lock()
	select {
	case <-item.started:
	default:
		q.mu.Unlock()
		return false
	}
	q.mu.Unlock()
	<-finished
	return true
}

// Stop stops the worker once the currently running item returns. Items still queued are dropped. Stop may be
// called from queued work.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	close(q.done)
}

// Stopped is closed once Stop has been called.
func (q *Queue) Stopped() <-chan struct{} {
	return q.done
}

func (q *Queue) run() {
	for {
		select {
		case <-q.done:
			return
		case item := <-q.queue:
			q.mu.Lock()
			if q.stopped {
				q.mu.Unlock()
				return
			}
			if item.started != nil {
				close(item.started)
			}
			q.mu.Unlock()
			item.fn()
		}
	}
}
