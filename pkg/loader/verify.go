package loader

import (
	"net/http"

	"github.com/replicate/cacheplayer/pkg/transport"
)

// Verify checks a finished full-file download, stopping at the first failure: an error status, then a size
// mismatch against the announced length when cfg.VerifyDownloadedSize is set, then the minimum size. The size
// checks are independent of each other.
func Verify(resp *transport.Response, actualSize int64, cfg Config) error {
	if resp != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return ErrUnexpectedHTTPStatus(resp.StatusCode)
		}
		if cfg.VerifyDownloadedSize {
			if expected := expectedContentLength(resp); expected != -1 && expected != actualSize {
				return &SizeMismatchError{Expected: expected, Actual: actualSize}
			}
		}
	}
	if cfg.MinimumExpectedSize > 0 && actualSize < cfg.MinimumExpectedSize {
		return &BelowMinimumError{Minimum: cfg.MinimumExpectedSize, Actual: actualSize}
	}
	return nil
}
