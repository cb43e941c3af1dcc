package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	replicator "github.com/raniellyferreira/redis-replicator"
)

var version = "dev"

// SetVersion sets the version reported by the version command and flag
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// No config needed
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rdb-replicator %s (library %s)\n", version, replicator.Version)
	},
}
