package storage

import "errors"

var ErrOutOfRange = errors.New("storage: read beyond current size")

// Storage is an append-only byte store holding the disk copy of one asset.
type Storage interface {
	// Append durably appends b. Appends are sequential; the store never holds gaps.
	Append(b []byte) error
	// ReadRange returns exactly n bytes starting at off. Reading past Size fails with ErrOutOfRange.
	ReadRange(off, n int64) ([]byte, error)
	// Size is the number of bytes appended so far.
	Size() int64
	// Delete removes the stored bytes. A later Append starts from empty.
	Delete() error
	// Path identifies the store; for files it is the location on disk.
	Path() string
}
