package cmd

import (
	"github.com/spf13/cobra"

	"github.com/replicate/cacheplayer/cmd/root"
	"github.com/replicate/cacheplayer/cmd/serve"
	"github.com/replicate/cacheplayer/cmd/version"
)

func GetRootCommand() *cobra.Command {
	rootCMD := root.GetCommand()
	rootCMD.AddCommand(serve.GetCommand())
	rootCMD.AddCommand(version.VersionCMD)
	return rootCMD
}
