package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/replicate/cacheplayer/pkg/client"
	"github.com/replicate/cacheplayer/pkg/loader"
	"github.com/replicate/cacheplayer/pkg/logging"
)

const envPrefix = "CACHEPLAYER"

func AddRootPersistentFlags(cmd *cobra.Command) error {
	// Persistent Flags (applies to all commands/subcommands)
	cmd.PersistentFlags().String(OptBufferLimit, "128KiB", "Bytes held in memory before they are written to the cache file (e.g. 256KiB)")
	cmd.PersistentFlags().String(OptReadLimit, "10MiB", "Largest slice read from the cache file for one delivery (e.g. 4MiB)")
	cmd.PersistentFlags().Bool(OptVerifySize, false, "Fail a finished download whose size differs from the announced length")
	cmd.PersistentFlags().String(OptMinimumSize, "0", "Fail a finished download smaller than this (e.g. 1MB), 0 disables the check")
	cmd.PersistentFlags().StringArrayP(OptHeader, "H", []string{}, `Header sent with every request, format "Key: Value"`)
	cmd.PersistentFlags().String(OptCacheDir, defaultCacheDir(), "Directory holding cached media")
	cmd.PersistentFlags().BoolP(OptForce, "f", false, "Discard an existing cache file and download again")
	cmd.PersistentFlags().String(OptConfigFile, "", "YAML file with option defaults")
	cmd.PersistentFlags().Bool(OptNoProgress, false, "Do not print download progress")
	cmd.PersistentFlags().Duration(OptConnTimeout, 5*time.Second, "Timeout for establishing a connection, format is <number><unit>, e.g. 10s")
	cmd.PersistentFlags().IntP(OptRetries, "r", 0, "Number of retries of a failed request made by the HTTP client")
	cmd.PersistentFlags().Int(OptMaxConnPerHost, 0, "Maximum number of concurrent connections per host, 0 means no limit")
	cmd.PersistentFlags().BoolP(OptVerbose, "v", false, "Verbose mode (equivalent to --log-level debug)")
	cmd.PersistentFlags().String(OptLoggingLevel, "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool(OptForceHTTP2, false, "Force HTTP/2")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		panic(err)
	}
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		panic(err)
	}

	// Hide flags from help, these are intended to be used for testing/debugging only
	if err := cmd.PersistentFlags().MarkHidden(OptForceHTTP2); err != nil {
		return fmt.Errorf("failed to hide flag %s: %w", OptForceHTTP2, err)
	}
	return nil
}

func PersistentStartupProcessFlags() error {
	if path := viper.GetString(OptConfigFile); path != "" {
		if err := LoadFile(path); err != nil {
			return err
		}
	}
	if viper.GetBool(OptVerbose) {
		viper.Set(OptLoggingLevel, "debug")
	}
	setLogLevel(viper.GetString(OptLoggingLevel))
	return nil
}

func setLogLevel(logLevel string) {
	// Set log-level
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

var fileOptions = map[string]bool{
	OptBufferLimit:    true,
	OptReadLimit:      true,
	OptVerifySize:     true,
	OptMinimumSize:    true,
	OptHeader:         true,
	OptCacheDir:       true,
	OptNoProgress:     true,
	OptListenAddr:     true,
	OptConnTimeout:    true,
	OptRetries:        true,
	OptMaxConnPerHost: true,
	OptForceHTTP2:     true,
	OptLoggingLevel:   true,
}

// LoadFile reads option defaults from a YAML file whose keys are flag names. Flags and environment variables
// still take precedence.
func LoadFile(path string) error {
	logger := logging.GetLogger()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	settings := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !fileOptions[key] {
			return fmt.Errorf("unknown option %q in config file %s", key, path)
		}
		viper.SetDefault(key, settings[key])
		logger.Debug().Str("option", key).Interface("value", settings[key]).Msg("Config")
	}
	return nil
}

// LoaderConfig builds the engine configuration from the bound options.
func LoaderConfig() (loader.Config, error) {
	bufferLimit, err := parseSize(OptBufferLimit)
	if err != nil {
		return loader.Config{}, err
	}
	readLimit, err := parseSize(OptReadLimit)
	if err != nil {
		return loader.Config{}, err
	}
	minimumSize, err := parseSize(OptMinimumSize)
	if err != nil {
		return loader.Config{}, err
	}
	if bufferLimit == 0 || readLimit == 0 {
		return loader.Config{}, errors.New("buffer and read limits must be greater than zero")
	}
	return loader.Config{
		DownloadBufferLimit:  int(bufferLimit),
		ReadDataLimit:        int(readLimit),
		VerifyDownloadedSize: viper.GetBool(OptVerifySize),
		MinimumExpectedSize:  int64(minimumSize),
	}, nil
}

func parseSize(opt string) (uint64, error) {
	size, err := humanize.ParseBytes(viper.GetString(opt))
	if err != nil {
		return 0, fmt.Errorf("invalid --%s: %w", opt, err)
	}
	return size, nil
}

func ClientOptions() client.Options {
	return client.Options{
		ForceHTTP2:     viper.GetBool(OptForceHTTP2),
		MaxRetries:     viper.GetInt(OptRetries),
		ConnectTimeout: viper.GetDuration(OptConnTimeout),
		MaxConnPerHost: viper.GetInt(OptMaxConnPerHost),
	}
}

// Headers parses the repeated "Key: Value" header options.
func Headers() (map[string]string, error) {
	headers := make(map[string]string)
	for _, raw := range viper.GetStringSlice(OptHeader) {
		key, value, ok := strings.Cut(raw, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header format, expected \"Key: Value\", got: %s", raw)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "cacheplayer")
}
