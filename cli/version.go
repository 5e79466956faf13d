package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set via -ldflags "-X github.com/VanDung-dev/AgriDx-Engine/cli.Version=...".
var (
	Version = "dev"
	Commit  = "none"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agridx %s (%s) %s/%s %s\n",
			Version, Commit, runtime.GOOS, runtime.GOARCH, runtime.Version())
	},
}
