package root

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replicate/cacheplayer/pkg/cli"
	"github.com/replicate/cacheplayer/pkg/config"
)

const rootLongDesc = `
cacheplayer

cacheplayer plays media from a remote URL while caching it to disk. A single full-file download fills the cache
file front to back; reads are answered from the cache file as soon as the bytes they need have been written, and
reads ahead of the download are fetched with their own range requests.

Once an asset is cached it is played from disk without touching the network. Use 'cacheplayer serve' to stream an
asset to an external player over HTTP while it is being cached.

Without a destination the cache file is placed under --cache-dir, named after the URL and the request headers.
`

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cacheplayer [flags] <url> [dest]",
		Short: "cacheplayer",
		Long:  rootLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.PersistentStartupProcessFlags()
		},
		RunE:    runRootCMD,
		Args:    cobra.RangeArgs(1, 2),
		Example: `  cacheplayer https://example.com/clip.mp4 clip.mp4`,
	}
	cmd.SetUsageTemplate(cli.UsageTemplate)
	err := config.AddRootPersistentFlags(cmd)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return cmd
}

func runRootCMD(cmd *cobra.Command, args []string) error {
	// After we run through the PreRun functions we want to silence usage from being printed
	// on all errors
	cmd.SilenceUsage = true

	urlString := args[0]
	dest := ""
	if len(args) > 1 {
		dest = args[1]
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return rootExecute(ctx, urlString, dest)
}

// rootExecute caches the asset at urlString and returns once the download finished, failed or ctx ended.
func rootExecute(ctx context.Context, urlString, dest string) (err error) {
	progress := cli.NewProgress(os.Stderr, viper.GetBool(config.OptNoProgress))
	session, err := cli.OpenItem(urlString, dest, progress)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); err == nil {
			err = closeErr
		}
	}()

	item := session.Item
	if err := item.Prepare(ctx); err != nil {
		return err
	}
	select {
	case <-item.Done():
		return item.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
