package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/replicate/cacheplayer/pkg/consistent"
)

const UsageTemplate = `
Usage:{{if .Runnable}}
{{if .HasAvailableFlags}}{{appendIfNotPresent .UseLine "[flags]"}}{{else}}{{.UseLine}}{{end}}{{end}}{{if .HasAvailableSubCommands}}
{{.CommandPath}} [command]{{end}}{{if gt .Aliases 0}}

Aliases:
{{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if .IsAvailableCommand}}
{{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
{{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`

// CacheShards is the number of subdirectories cache files are spread over.
const CacheShards = 16

const defaultExtension = ".mp4"

// CachePath names the cache file for rawURL under dir. The name depends on the URL and the request headers and
// keeps the extension of the URL path, which is how a cached file's content type is recognised later.
func CachePath(dir, rawURL string, headers map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("error parsing url %s: %w", rawURL, err)
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || ext == "." {
		ext = defaultExtension
	}

	key, err := consistent.Key(rawURL, headers)
	if err != nil {
		return "", err
	}
	shard, err := consistent.Shard(key, CacheShards)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%02x", shard), fmt.Sprintf("%016x%s", key, ext)), nil
}

// PrepareCachePath creates the directory for path. With force an existing file is removed so the asset is
// downloaded again.
func PrepareCachePath(path string, force bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if !force {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
