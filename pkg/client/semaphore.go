package client

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/semaphore"
)

// hostLimiter is a RoundTripper that limits the number of concurrent requests per scheme+host. A slot is held
// until the response body is closed, since a media fetch occupies its connection for as long as the body streams.
type hostLimiter struct {
	next    http.RoundTripper
	maxConn int64

	mu    sync.Mutex
	hosts map[string]*semaphore.Weighted
}

func newHostLimiter(next http.RoundTripper, maxConnPerHost int) *hostLimiter {
	return &hostLimiter{
		next:    next,
		maxConn: int64(maxConnPerHost),
		hosts:   make(map[string]*semaphore.Weighted),
	}
}

func (l *hostLimiter) semaphoreFor(key string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.hosts[key]
	if !ok {
		sem = semaphore.NewWeighted(l.maxConn)
		l.hosts[key] = sem
	}
	return sem
}

func (l *hostLimiter) RoundTrip(req *http.Request) (*http.Response, error) {
	sem := l.semaphoreFor(schemeHostKey(req.URL))
	if err := sem.Acquire(req.Context(), 1); err != nil {
		return nil, err
	}
	resp, err := l.next.RoundTrip(req)
	if err != nil {
		sem.Release(1)
		return nil, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: func() { sem.Release(1) }}
	return resp, nil
}

type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}

func schemeHostKey(u *url.URL) string {
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}

func GetSchemeHostKey(urlString string) (string, error) {
	parsedURL, err := url.Parse(urlString)
	if err != nil {
		return "", err
	}
	return schemeHostKey(parsedURL), nil
}
