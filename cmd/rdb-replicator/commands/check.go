package commands

import (
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/raniellyferreira/redis-replicator/observers"
	"github.com/raniellyferreira/redis-replicator/replication"
)

// ErrChecksumNotVerified is returned by check for a snapshot whose checksum
// did not match
var ErrChecksumNotVerified = errors.New("snapshot checksum mismatch")

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Decode a snapshot and verify its checksum",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stats := observers.NewLoadStats(replication.NewLogrusLogger(logrus.WithField("source", sourceName(conf))))
		r, release, err := newReplicator(stats)
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

		st := r.Stats()
		s := st.Snapshot
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "source:     %s\n", st.Source)
		fmt.Fprintf(out, "version:    %d\n", s.Version)
		fmt.Fprintf(out, "entities:   %d (%d filtered)\n", s.Entities, s.Filtered)
		fmt.Fprintf(out, "size:       %s\n", datasize.ByteSize(s.Bytes).HumanReadable())
		fmt.Fprintf(out, "operations: %d\n", st.Operations)
		for _, db := range stats.Databases() {
			ds, _ := stats.Database(db)
			fmt.Fprintf(out, "db%d:        keys=%d,expires=%d\n", db, ds.Keys, ds.Expires)
		}

		switch {
		case s.Checksum == 0:
			fmt.Fprintln(out, "checksum:   absent")
		case s.Mismatch:
			fmt.Fprintf(out, "checksum:   MISMATCH stored=%016x computed=%016x\n", s.Checksum, s.Computed)
			return ErrChecksumNotVerified
		default:
			fmt.Fprintf(out, "checksum:   ok %016x\n", s.Checksum)
		}
		return nil
	},
}
