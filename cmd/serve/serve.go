package serve

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/replicate/cacheplayer/pkg/cli"
	"github.com/replicate/cacheplayer/pkg/config"
	"github.com/replicate/cacheplayer/pkg/logging"
	"github.com/replicate/cacheplayer/pkg/proxy"
)

const longDesc = `
Serve an asset over HTTP while it is being cached.

The server answers GET and HEAD requests, including Range requests, for the one asset named on the command line.
Point a media player at the listen address to stream the asset. Bytes already cached are read from disk; the rest
is fetched on demand while the full download continues in the background.
`

const shutdownTimeout = 5 * time.Second

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve [flags] <url> [dest]",
		Short:   "stream an asset over HTTP while caching it",
		Long:    longDesc,
		RunE:    runServeCMD,
		Args:    cobra.RangeArgs(1, 2),
		Example: `  cacheplayer serve --listen-address 127.0.0.1:9512 https://example.com/clip.mp4`,
	}
	cmd.Flags().String(config.OptListenAddr, "127.0.0.1:9512", "address to listen on")
	err := viper.BindPFlags(cmd.Flags())
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	cmd.SetUsageTemplate(cli.UsageTemplate)
	return cmd
}

func runServeCMD(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	logger := logging.GetLogger()

	dest := ""
	if len(args) > 1 {
		dest = args[1]
	}
	progress := cli.NewProgress(os.Stderr, viper.GetBool(config.OptNoProgress))
	session, err := cli.OpenItem(args[0], dest, progress)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Msg("Close")
		}
	}()

	srv, err := proxy.New(session.Item, &proxy.Options{
		Address: viper.GetString(config.OptListenAddr),
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("address", viper.GetString(config.OptListenAddr)).Str("url", args[0]).Msg("Serving")
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		session.Item.Terminate()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
