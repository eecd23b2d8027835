package cli

// CacheLock is a no-op on windows.
type CacheLock struct{}

func LockPath(cachePath string) string {
	return cachePath + ".lock"
}

func NewCacheLock(string) (*CacheLock, error) {
	return &CacheLock{}, nil
}

func (*CacheLock) Acquire() error { return nil }

func (*CacheLock) Release() error { return nil }
