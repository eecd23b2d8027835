package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is an append-only Storage backed by a file on disk. The file is created lazily on the first Append so an
// asset that never receives bytes leaves nothing behind.
type File struct {
	path string

	mu   sync.RWMutex
	f    *os.File
	size int64
}

var _ Storage = &File{}

// OpenFile returns a File for path. Existing content is kept and counts towards Size.
func OpenFile(path string) (*File, error) {
	file := &File{path: path}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.IsDir() {
			return nil, fmt.Errorf("cache path %s is a directory", path)
		}
		file.size = info.Size()
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("error inspecting cache file: %w", err)
	}
	return file, nil
}

func (s *File) Path() string {
	return s.path
}

func (s *File) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *File) Append(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
			return fmt.Errorf("error creating cache directory: %w", err)
		}
		f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("error opening cache file: %w", err)
		}
		s.f = f
	}
	n, err := s.f.Write(b)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("error writing cache file: %w", err)
	}
	return nil
}

func (s *File) ReadRange(off, n int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if off < 0 || n < 0 || off+n > s.size {
		return nil, fmt.Errorf("%w: offset %d length %d size %d", ErrOutOfRange, off, n, s.size)
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}

	r := s.f
	if r == nil {
		// content from a previous run, not yet reopened for appending
		f, err := os.Open(s.path)
		if err != nil {
			return nil, fmt.Errorf("error opening cache file: %w", err)
		}
		defer f.Close()
		r = f
	}
	read, err := r.ReadAt(buf, off)
	if err != nil && !(errors.Is(err, io.EOF) && int64(read) == n) {
		return nil, fmt.Errorf("error reading cache file: %w", err)
	}
	return buf, nil
}

func (s *File) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}
	s.size = 0
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error deleting cache file: %w", err)
	}
	return nil
}

// Close releases the file handle without deleting anything.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
