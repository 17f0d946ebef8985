package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vietddude/localprobe/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agent version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s (commit %s)\n", version.Name, version.Version, version.Commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
