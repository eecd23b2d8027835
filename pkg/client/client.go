package client

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/replicate/cacheplayer/pkg/logging"
	"github.com/replicate/cacheplayer/pkg/version"
)

const (
	retryMinWait     = 100 * time.Millisecond  // in milliseconds
	retryMaxWait     = 3000 * time.Millisecond // in milliseconds, do not backoff further than 3 seconds
	retrySleepJitter = 500                     // (will add 0-500 additional milliseconds), multiplied by time.Millisecond in backoffFunc

	defaultConnectTimeout = 5 * time.Second
)

// HTTPClient is the part of *http.Client the transport needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ HTTPClient = &http.Client{}

type Options struct {
	ForceHTTP2 bool
	// MaxRetries is handed to retryablehttp. Zero, the default, means a failed connection is reported as is;
	// the caching engine never retries on its own.
	MaxRetries     int
	ConnectTimeout time.Duration
	// MaxConnPerHost limits concurrent requests per scheme+host. Zero disables the limit.
	MaxConnPerHost int
}

type UserAgentTransport struct {
	Transport http.RoundTripper
}

func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", version.UserAgent())
	return t.Transport.RoundTrip(req)
}

// NewHTTPClient returns an http.Client suited to long-lived media fetches: no overall timeout (a full-file download
// lasts as long as it lasts), bounded connect and TLS handshake times, and optional per-host limiting.
func NewHTTPClient(opts Options) *http.Client {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultConnectTimeout
	}
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}

	var baseTransport http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     opts.ForceHTTP2,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Range responses must arrive byte for byte
		DisableCompression: true,
	}
	if opts.MaxConnPerHost > 0 {
		baseTransport = newHostLimiter(baseTransport, opts.MaxConnPerHost)
	}

	transport := &UserAgentTransport{Transport: baseTransport}

	retryClient := &retryablehttp.Client{
		HTTPClient: &http.Client{
			Transport:     transport,
			CheckRedirect: checkRedirectFunc,
		},
		Logger:       nil,
		RetryWaitMin: retryMinWait,
		RetryWaitMax: retryMaxWait,
		RetryMax:     opts.MaxRetries,
		CheckRetry:   RetryPolicy,
		Backoff:      backoffFunc,
		// hand the last response back instead of a synthesized "giving up" error so status
		// verification sees the real status code
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return retryClient.StandardClient()
}

// RetryPolicy wraps retryablehttp.DefaultRetryPolicy so that a cancelled fetch is never retried.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// backoffFunc is a wrapper around retryablehttp.DefaultBackoff that allows for adding a random jitter to the backoff
func backoffFunc(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	sleep := time.Duration(rand.Intn(retrySleepJitter)) * time.Millisecond
	sleep += retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
	return sleep
}

// checkRedirectFunc is a wrapper around http.Client.CheckRedirect that allows for printing out redirects
func checkRedirectFunc(req *http.Request, via []*http.Request) error {
	logger := logging.GetLogger()
	logger.Trace().
		Str("redirect_url", req.URL.String()).
		Str("url", via[0].URL.String()).
		Int("status", req.Response.StatusCode).
		Msg("Redirect")
	return nil
}
