package config

const (
	// engine tuning
	OptBufferLimit = "buffer-limit"
	OptReadLimit   = "read-limit"
	OptVerifySize  = "verify-size"
	OptMinimumSize = "minimum-size"
	OptHeader      = "header"
	OptCacheDir    = "cache-dir"
	OptForce       = "force"
	OptListenAddr  = "listen-address"
	OptConfigFile  = "config"
	OptNoProgress  = "no-progress"

	// HTTP client
	OptConnTimeout    = "connect-timeout"
	OptForceHTTP2     = "force-http2"
	OptMaxConnPerHost = "max-conn-per-host"
	OptRetries        = "retries"

	OptLoggingLevel = "log-level"
	OptVerbose      = "verbose"
)
