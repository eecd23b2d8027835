package loader

import (
	"io"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/replicate/cacheplayer/pkg/logging"
	"github.com/replicate/cacheplayer/pkg/storage"
)

// FileLoader answers loading requests from a cache file that is already complete. It never touches the network
// and every request is finished before Accept returns.
type FileLoader struct {
	store  storage.Storage
	cfg    Config
	logger zerolog.Logger
}

var _ Loader = &FileLoader{}

func NewFileLoader(store storage.Storage, cfg Config) *FileLoader {
	return &FileLoader{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logging.Component("loader").With().Str("path", store.Path()).Logger(),
	}
}

// ContentInfo describes the file: its type from the extension, its size, and byte range support.
func (l *FileLoader) ContentInfo() ContentInfo {
	return ContentInfo{
		ContentType:              classifyContentType(filepath.Ext(l.store.Path())),
		ContentLength:            l.store.Size(),
		ByteRangeAccessSupported: true,
	}
}

func (l *FileLoader) Accept(req LoadingRequest) bool {
	p, err := newPendingRequest(l.store.Path(), nil, req)
	if err != nil {
		l.logger.Warn().Err(err).Msg("rejected loading request")
		return false
	}
	switch p.kind {
	case pendingContentInfo:
		p.fillInContentInformation(l.ContentInfo())
		p.finishLoading(nil)
	case pendingData:
		serveCachedData(l.store, p, l.cfg.ReadDataLimit, l.logger)
	}
	return true
}

// Cancel does nothing; no request outlives Accept.
func (l *FileLoader) Cancel(LoadingRequest) {}

func (l *FileLoader) Close() error {
	if closer, ok := l.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (l *FileLoader) Terminate() {}

func (l *FileLoader) Path() string {
	return l.store.Path()
}
