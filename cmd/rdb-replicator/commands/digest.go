package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raniellyferreira/redis-replicator/observers"
)

func init() {
	rootCmd.AddCommand(digestCmd)
}

var digestCmd = &cobra.Command{
	Use:   "digest [file]",
	Short: "Print a digest of the snapshot keyspace",
	Long: `Print a digest of the snapshot keyspace. The digest depends only on the
logical content: two snapshots of the same data produced with different
encodings or key order have the same digest.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := observers.NewDigest()
		r, release, err := newReplicator(d)
		if err != nil {
			return err
		}
		defer release()
		if err := stopAfterSnapshot(r); err != nil {
			return err
		}

		if err := r.Run(rootCtx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%016x %d keys\n", d.Sum(), d.Count())
		return nil
	},
}
