package player_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicate/cacheplayer/pkg/loader"
	"github.com/replicate/cacheplayer/pkg/player"
	"github.com/replicate/cacheplayer/pkg/transport"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}

type recordingObserver struct {
	player.NopObserver

	mu       sync.Mutex
	ready    int
	failed   []error
	stalls   int
	finished []string
	dlFailed []error
}

func (o *recordingObserver) ReadyToPlay(*player.Item) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ready++
}

func (o *recordingObserver) FailedToPlay(_ *player.Item, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, err)
}

func (o *recordingObserver) PlaybackStalled(*player.Item) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stalls++
}

func (o *recordingObserver) DownloadFinished(_ *player.Item, path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, path)
}

func (o *recordingObserver) DownloadFailed(_ *player.Item, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dlFailed = append(o.dlFailed, err)
}

func (o *recordingObserver) snapshot() recordingObserver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return recordingObserver{
		ready:    o.ready,
		failed:   append([]error(nil), o.failed...),
		stalls:   o.stalls,
		finished: append([]string(nil), o.finished...),
		dlFailed: append([]error(nil), o.dlFailed...),
	}
}

func content(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i % 253)
	}
	return b
}

func mediaServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newItem(t *testing.T, url string, t2 transport.Transport, observer player.Observer) *player.Item {
	t.Helper()
	cfg := loader.DefaultConfig()
	cfg.DownloadBufferLimit = 16 * 1024
	item, err := player.New(url, filepath.Join(t.TempDir(), "clip.mp4"), player.Options{
		Config:    cfg,
		Transport: t2,
		Observer:  observer,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = item.Close() })
	return item
}

func waitDownload(t *testing.T, item *player.Item) error {
	t.Helper()
	select {
	case <-item.Done():
		return item.Err()
	case <-time.After(10 * time.Second):
		t.Fatal("download did not finish")
		return nil
	}
}

func TestItemStreamsAndCaches(t *testing.T) {
	body := content(300_000)
	server := mediaServer(t, body)
	observer := &recordingObserver{}
	item := newItem(t, server.URL+"/clip.mp4", transport.NewHTTP(server.Client(), zerolog.Nop()), observer)
	assert.False(t, item.IsLocal())

	require.NoError(t, item.Prepare(context.Background()))
	info, ok := item.ContentInfo()
	require.True(t, ok)
	assert.Equal(t, loader.ContentInfo{ContentType: "video/mp4", ContentLength: 300_000, ByteRangeAccessSupported: true}, info)

	p := make([]byte, 1000)
	n, err := item.ReadAt(p, 5000)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
	assert.Equal(t, body[5000:6000], p)

	n, err = item.ReadAt(p[:100], 299_950)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 50, n)
	assert.Equal(t, body[299_950:], p[:50])

	_, err = item.ReadAt(p, 300_000)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, waitDownload(t, item))
	onDisk, err := os.ReadFile(item.Path())
	require.NoError(t, err)
	assert.Equal(t, body, onDisk)

	r, err := item.NewReader()
	require.NoError(t, err)
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, body, all)

	require.NoError(t, item.Close())
	got := observer.snapshot()
	assert.Equal(t, 1, got.ready)
	assert.Empty(t, got.failed)
	assert.Equal(t, []string{item.Path()}, got.finished)
	assert.Empty(t, got.dlFailed)

	_, err = os.Stat(item.Path())
	assert.NoError(t, err, "a finished download stays cached")
}

// refusingTransport fails the test when the engine tries to go to the network.
type refusingTransport struct {
	t *testing.T
}

func (r refusingTransport) NewSession(transport.Delegate) transport.Session {
	r.t.Error("a cached item must not open a download session")
	return nil
}

func TestCachedItemNeverTouchesNetwork(t *testing.T) {
	body := content(1000)
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, body, 0644))

	observer := &recordingObserver{}
	item, err := player.New("https://media.example.com/clip.mp4", path, player.Options{
		Transport: refusingTransport{t: t},
		Observer:  observer,
	})
	require.NoError(t, err)
	defer item.Close()

	assert.True(t, item.IsLocal())
	require.NoError(t, waitDownload(t, item))

	require.NoError(t, item.Prepare(context.Background()))
	info, ok := item.ContentInfo()
	require.True(t, ok)
	assert.Equal(t, int64(1000), info.ContentLength)

	p := make([]byte, 300)
	n, err := item.ReadAt(p, 600)
	require.NoError(t, err)
	assert.Equal(t, 300, n)
	assert.Equal(t, body[600:900], p)

	require.NoError(t, item.Close())
	got := observer.snapshot()
	assert.Equal(t, 1, got.ready)
	assert.Zero(t, got.stalls)
}

func TestPrepareFailsOnErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)
	observer := &recordingObserver{}
	item := newItem(t, server.URL+"/missing.mp4", transport.NewHTTP(server.Client(), zerolog.Nop()), observer)

	err := item.Prepare(context.Background())
	var statusErr *loader.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	dlErr := waitDownload(t, item)
	require.ErrorAs(t, dlErr, &statusErr)

	require.NoError(t, item.Close())
	got := observer.snapshot()
	assert.Zero(t, got.ready)
	require.Len(t, got.failed, 1)
	assert.Len(t, got.dlFailed, 1)
}

func TestReadAtContextCanBeAbandoned(t *testing.T) {
	body := content(10_000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		if r.Header.Get("Range") == "bytes=0-1" {
			http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(body))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	observer := &recordingObserver{}
	item := newItem(t, server.URL+"/clip.mp4", transport.NewHTTP(server.Client(), zerolog.Nop()), observer)
	require.NoError(t, item.Prepare(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	n, err := item.ReadAtContext(ctx, make([]byte, 100), 1000)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, n)

	require.NoError(t, item.Close())
	assert.Equal(t, 1, observer.snapshot().stalls)

	_, err = os.Stat(item.Path())
	assert.Error(t, err, "nothing is left behind by an abandoned download")
}

func TestNewReaderNeedsPrepare(t *testing.T) {
	item := newItem(t, "https://media.example.com/clip.mp4", refusingTransport{t: t}, nil)
	_, err := item.NewReader()
	assert.ErrorIs(t, err, player.ErrNotPrepared)
}
