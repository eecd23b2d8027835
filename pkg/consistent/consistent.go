// Package consistent names cache files and spreads them over shard directories.
package consistent

import (
	"fmt"

	"github.com/dgryski/go-jump"
	"github.com/mitchellh/hashstructure/v2"
)

type assetKey struct {
	URL     string
	Headers map[string]string
}

// Key hashes the identity of an asset: its URL and the headers it is requested with, since headers such as
// Authorization can select different content.
func Key(url string, headers map[string]string) (uint64, error) {
	if len(headers) == 0 {
		headers = nil
	}
	// we set IgnoreZeroValue so that we can add fields to the hash key
	// later without renaming every cached file.
	// note that it's not safe to share a HashOptions so we create a fresh one each time.
	hashopts := &hashstructure.HashOptions{IgnoreZeroValue: true}
	hash, err := hashstructure.Hash(assetKey{URL: url, Headers: headers}, hashstructure.FormatV2, hashopts)
	if err != nil {
		return 0, fmt.Errorf("error calculating hash of asset key: %w", err)
	}
	return hash, nil
}

// Shard maps key to a shard in [0,shards). Growing the shard count moves only the keys that land in new shards.
func Shard(key uint64, shards int) (int, error) {
	if shards <= 0 {
		return -1, fmt.Errorf("invalid shard count %d", shards)
	}
	// jump is an implementation of Google's Jump Consistent Hash.
	//
	// See http://arxiv.org/abs/1406.2294 for details.
	return int(jump.Hash(key, shards)), nil
}
