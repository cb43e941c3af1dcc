package commands

import (
	"bufio"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/raniellyferreira/redis-replicator/observers"
)

var (
	dumpSkipAux bool
	dumpOutput  string
)

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().BoolVar(&dumpSkipAux, "skip-aux", false, "Do not write AUX, RESIZEDB and FUNCTION records")
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "-", "Output file, - for stdout")
}

var dumpCmd = &cobra.Command{
	Use:   "dump [file]",
	Short: "Write every key and operation as one JSON object per line",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if dumpOutput != "-" {
			f, err := os.Create(dumpOutput)
			if err != nil {
				return errors.Wrap(err, "create output")
			}
			defer func() { _ = f.Close() }()
			bw := bufio.NewWriter(f)
			defer func() { _ = bw.Flush() }()
			out = bw
		}

		w := observers.NewJSONWriter(out)
		w.SkipAux = dumpSkipAux

		r, release, err := newReplicator(w)
		if err != nil {
			return err
		}
		defer release()

		runErr := r.Run(rootCtx)
		if err := w.Flush(); err != nil && runErr == nil {
			return errors.Wrap(err, "write output")
		}
		return runErr
	},
}
