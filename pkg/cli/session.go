package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/viper"

	"github.com/replicate/cacheplayer/pkg/config"
	"github.com/replicate/cacheplayer/pkg/logging"
	"github.com/replicate/cacheplayer/pkg/player"
)

// Session is an item opened by a command, together with the lock on its cache file.
type Session struct {
	Item *player.Item
	lock *CacheLock
}

// OpenItem resolves the cache file for rawURL, locks it and creates the item from the bound options. An empty
// dest places the file under the cache directory.
func OpenItem(rawURL, dest string, observer player.Observer) (*Session, error) {
	logger := logging.GetLogger()
	headers, err := config.Headers()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoaderConfig()
	if err != nil {
		return nil, err
	}
	if dest == "" {
		dest, err = CachePath(viper.GetString(config.OptCacheDir), rawURL, headers)
		if err != nil {
			return nil, err
		}
	}
	if err := PrepareCachePath(dest, viper.GetBool(config.OptForce)); err != nil {
		return nil, err
	}

	lock, err := NewCacheLock(LockPath(dest))
	if err != nil {
		return nil, fmt.Errorf("failed to create lock for %s: %w", dest, err)
	}
	if err := lock.Acquire(); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", dest, err)
	}

	logger.Info().
		Str("url", rawURL).
		Str("dest", dest).
		Int("buffer_limit", cfg.DownloadBufferLimit).
		Bool("verify_size", cfg.VerifyDownloadedSize).
		Msg("Initiating")

	item, err := player.New(rawURL, dest, player.Options{
		Headers:  headers,
		Config:   cfg,
		Client:   config.ClientOptions(),
		Observer: observer,
	})
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	return &Session{Item: item, lock: lock}, nil
}

// Close closes the item and releases the lock. A failed download leaves no cache file behind.
func (s *Session) Close() error {
	closeErr := s.Item.Close()
	if err := s.Item.Err(); err != nil {
		if rmErr := os.Remove(s.Item.Path()); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			logger := logging.GetLogger()
			logger.Warn().Err(rmErr).Str("path", s.Item.Path()).Msg("Failed to remove cache file")
		}
	}
	return errors.Join(closeErr, s.lock.Release())
}
