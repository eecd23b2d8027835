package loader

import "github.com/dustin/go-humanize"

// Config tunes one engine instance. It is fixed for the lifetime of a Bridge.
type Config struct {
	// DownloadBufferLimit is how many full-file bytes are held in memory before they are appended to disk.
	DownloadBufferLimit int
	// ReadDataLimit caps how many bytes are read from disk for a single delivery.
	ReadDataLimit int
	// VerifyDownloadedSize fails a finished download whose size differs from the announced length.
	VerifyDownloadedSize bool
	// MinimumExpectedSize fails a finished download smaller than this. Zero disables the check.
	MinimumExpectedSize int64
}

const (
	DefaultDownloadBufferLimit = 128 * humanize.KiByte
	DefaultReadDataLimit       = 10 * humanize.MiByte
)

func DefaultConfig() Config {
	return Config{
		DownloadBufferLimit: DefaultDownloadBufferLimit,
		ReadDataLimit:       DefaultReadDataLimit,
	}
}

// withDefaults fills zero limits so a zero Config behaves like DefaultConfig.
func (c Config) withDefaults() Config {
	if c.DownloadBufferLimit <= 0 {
		c.DownloadBufferLimit = DefaultDownloadBufferLimit
	}
	if c.ReadDataLimit <= 0 {
		c.ReadDataLimit = DefaultReadDataLimit
	}
	return c
}
