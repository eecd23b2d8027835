package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/replicate/cacheplayer/pkg/client"
)

const defaultReadSize = 64 * 1024

// HTTP is a Transport issuing GET requests through an HTTP client.
type HTTP struct {
	Client client.HTTPClient
	// ReadSize is the largest chunk handed to OnData. Zero means 64 KiB.
	ReadSize int
	Logger   zerolog.Logger
}

var _ Transport = &HTTP{}

func NewHTTP(c client.HTTPClient, logger zerolog.Logger) *HTTP {
	return &HTTP{Client: c, Logger: logger}
}

func (t *HTTP) NewSession(d Delegate) Session {
	ctx, cancel := context.WithCancel(context.Background())
	readSize := t.ReadSize
	if readSize <= 0 {
		readSize = defaultReadSize
	}
	return &httpSession{
		client:   t.Client,
		delegate: d,
		readSize: readSize,
		logger:   t.Logger,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[TaskID]context.CancelFunc),
	}
}

type httpSession struct {
	client   client.HTTPClient
	delegate Delegate
	readSize int
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	nextID atomic.Int64

	mu          sync.Mutex
	tasks       map[TaskID]context.CancelFunc
	invalidated bool
}

func (s *httpSession) Start(req Request) (TaskID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalidated {
		return NoTask, ErrSessionInvalid
	}

	httpReq, err := http.NewRequest(http.MethodGet, req.URL, nil)
	if err != nil {
		return NoTask, fmt.Errorf("failed to create request for %s: %w", req.URL, err)
	}
	for key, values := range req.Header {
		httpReq.Header[key] = append([]string(nil), values...)
	}

	id := TaskID(s.nextID.Add(1))
	ctx, cancel := context.WithCancel(s.ctx)
	s.tasks[id] = cancel

	go s.run(ctx, id, httpReq.WithContext(ctx))
	return id, nil
}

func (s *httpSession) Cancel(id TaskID) {
	s.mu.Lock()
	cancel, ok := s.tasks[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *httpSession) InvalidateAndCancel() {
	s.mu.Lock()
	s.invalidated = true
	s.mu.Unlock()
	s.cancel()
}

func (s *httpSession) run(ctx context.Context, id TaskID, req *http.Request) {
	err := s.fetch(ctx, id, req)
	if ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	s.mu.Lock()
	if cancel, ok := s.tasks[id]; ok {
		cancel()
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	s.delegate.OnComplete(id, err)
}

func (s *httpSession) fetch(ctx context.Context, id TaskID, req *http.Request) error {
	logger := s.logger.With().Int64("task", int64(id)).Logger()
	logger.Debug().
		Str("url", req.URL.String()).
		Str("range", req.Header.Get("Range")).
		Msg("request")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	s.delegate.OnResponse(id, &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header.Clone(),
		ContentLength: resp.ContentLength,
	})

	for {
		buf := make([]byte, s.readSize)
		n, err := resp.Body.Read(buf)
		if n > 0 {
			s.delegate.OnData(id, buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.Debug().Err(err).Msg("body read failed")
			}
			return err
		}
	}
}
