package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/replicate/cacheplayer/pkg/logging"
	"github.com/replicate/cacheplayer/pkg/player"
)

// Proxy serves one Item over HTTP so an external player can stream it with Range requests while it is being
// cached.
type Proxy struct {
	httpServer *http.Server
	item       *player.Item
	opts       *Options
}

type Options struct {
	Address string
}

func New(item *player.Item, opts *Options) (*Proxy, error) {
	if item == nil {
		return nil, errors.New("proxy: no item to serve")
	}
	if opts == nil {
		opts = &Options{}
	}
	p := &Proxy{
		item: item,
		opts: opts,
	}
	p.httpServer = &http.Server{
		Addr:              opts.Address,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return p, nil
}

// Start listens on the configured address and blocks until the server stops. It returns nil after Shutdown.
func (p *Proxy) Start() error {
	logger := logging.GetLogger()
	logger.Debug().Str("address", p.opts.Address).Msg("Listening on")
	err := p.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (p *Proxy) Shutdown(ctx context.Context) error {
	return p.httpServer.Shutdown(ctx)
}

func (p *Proxy) Handler() http.Handler {
	return http.HandlerFunc(p.serveItem)
}

func (p *Proxy) serveItem(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLogger()
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	info, ok := p.item.ContentInfo()
	if !ok {
		if err := p.item.Prepare(r.Context()); err != nil {
			logger.Error().Err(err).Str("url", p.item.URL()).Msg("Prepare")
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		info, _ = p.item.ContentInfo()
	}
	if info.ContentLength < 0 {
		http.Error(w, player.ErrUnknownLength.Error(), http.StatusBadGateway)
		return
	}

	logger.Debug().
		Str("method", r.Method).
		Str("range", r.Header.Get("Range")).
		Msg("Serving")

	w.Header().Set("Content-Type", info.ContentType)
	reader := io.NewSectionReader(&contextReaderAt{item: p.item, ctx: r.Context()}, 0, info.ContentLength)
	http.ServeContent(w, r, path.Base(p.item.URL()), time.Time{}, reader)
}

// contextReaderAt ties reads to the lifetime of the HTTP request, so a client that goes away does not leave a
// read waiting on the download.
type contextReaderAt struct {
	item *player.Item
	ctx  context.Context
}

func (c *contextReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return c.item.ReadAtContext(c.ctx, p, off)
}
