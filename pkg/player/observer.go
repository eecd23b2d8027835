package player

// Observer receives the notifications of an Item. All calls for one Item are made from a single goroutine, in
// the order the underlying events happened. The download runs on while a callback is busy, but a callback that
// waits on the item's own reads can stall it once enough notifications queue up; hand such work to another
// goroutine.
type Observer interface {
	ReadyToPlay(item *Item)
	FailedToPlay(item *Item, err error)
	// PlaybackStalled reports a read that could not be answered from disk right away.
	PlaybackStalled(item *Item)
	DownloadProgress(item *Item, bytesSoFar, bytesExpected int64)
	DownloadFinished(item *Item, path string)
	DownloadFailed(item *Item, err error)
}

// NopObserver ignores everything. Embed it to implement only part of Observer.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) ReadyToPlay(*Item)                    {}
func (NopObserver) FailedToPlay(*Item, error)            {}
func (NopObserver) PlaybackStalled(*Item)                {}
func (NopObserver) DownloadProgress(*Item, int64, int64) {}
func (NopObserver) DownloadFinished(*Item, string)       {}
func (NopObserver) DownloadFailed(*Item, error)          {}
