package loader

// Events receives download level notifications from a Bridge. Calls are made from the engine's serial queue, one
// at a time; implementations must not call back into the Bridge synchronously.
type Events interface {
	DownloadProgress(bytesSoFar, bytesExpected int64)
	DownloadFinished(path string)
	DownloadFailed(err error)
}

type nopEvents struct{}

func (nopEvents) DownloadProgress(int64, int64) {}
func (nopEvents) DownloadFinished(string)       {}
func (nopEvents) DownloadFailed(error)          {}

// Loader answers loading requests for one asset.
type Loader interface {
	// Accept takes ownership of req and reports whether its shape is supported.
	Accept(req LoadingRequest) bool
	// Cancel withdraws a previously accepted request.
	Cancel(req LoadingRequest)
	// Close tears the loader down. Cached bytes of an unfinished download are removed.
	Close() error
	// Terminate is Close for process shutdown: in-flight state is left alone.
	Terminate()
}
