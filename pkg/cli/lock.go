//go:build !windows

package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/replicate/cacheplayer/pkg/logging"
)

// CacheLock keeps two processes from filling the same cache file. The lock file sits next to the cache file and
// holds the pid of the owner.
type CacheLock struct {
	file *os.File
	fd   int
}

func LockPath(cachePath string) string {
	return cachePath + ".lock"
}

func NewCacheLock(path string) (*CacheLock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &CacheLock{file: file, fd: int(file.Fd())}, nil
}

// Acquire blocks until the lock is held.
func (l *CacheLock) Acquire() error {
	logger := logging.GetLogger()
	funcs := []func() error{
		func() error {
			logger.Debug().Str("blocking_lock_acquire", "false").Msg("Waiting on Lock")
			err := syscall.Flock(l.fd, syscall.LOCK_EX|syscall.LOCK_NB)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("lock", l.file.Name()).
					Msg("Another cacheplayer process is using this cache file, waiting")
				logger.Debug().Str("blocking_lock_acquire", "true").Msg("Waiting on Lock")
				err = syscall.Flock(l.fd, syscall.LOCK_EX)
			}
			return err
		},
		l.writePID,
		l.file.Sync,
	}
	return l.executeFuncs(funcs)
}

func (l *CacheLock) Release() error {
	funcs := []func() error{
		func() error { return os.Remove(l.file.Name()) },
		func() error { return syscall.Flock(l.fd, syscall.LOCK_UN) },
		l.file.Close,
	}
	return l.executeFuncs(funcs)
}

func (l *CacheLock) writePID() error {
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	_, err := l.file.WriteAt([]byte(fmt.Sprintf("%d", os.Getpid())), 0)
	return err
}

func (l *CacheLock) executeFuncs(funcs []func() error) error {
	for _, fn := range funcs {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
