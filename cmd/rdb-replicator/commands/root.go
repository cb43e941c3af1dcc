package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/raniellyferreira/redis-replicator/config"
	"github.com/raniellyferreira/redis-replicator/config/logger"
)

var (
	configFile string
	debug      bool
	logConfig  bool
	conf       config.Config
)

// Set by Execute
var rootCtx context.Context

var rootHelp = `This tool decodes Redis snapshots and replication streams,
from a dump file or a live master, without storing anything.
`

var rootCmd = &cobra.Command{
	Use:           "rdb-replicator",
	Short:         "Decode Redis snapshots and replication streams",
	Long:          rootHelp,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		conf = config.Default()
		conf.Version = version
		if configFile != "" {
			if err := conf.LoadYAMLFile(configFile, true); err != nil {
				return errors.Wrapf(err, "load config file %q", configFile)
			}
		}
		// Positional arguments name a snapshot file
		if len(args) > 0 {
			conf.Source.File = args[0]
		}

		conf.Log = conf.Log.Merge(logger.FlagConfig)
		if debug {
			conf.Log.Level = "debug"
		}
		if err := conf.Check(); err != nil {
			return errors.Wrap(err, "config error")
		}
		logger.Configure(conf.Log)
		logrus.WithField("version", version).Debug("Running")
		if logConfig {
			logrus.Infof("Effective configuration:\n%s\n", conf.String())
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file")
	rootCmd.PersistentFlags().BoolVar(&logConfig, "log-config", false, "Log the evaluated configuration on startup")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	logger.RegisterFlagsWith(rootCmd.PersistentFlags().StringVar)
}

// Execute runs the root command until it returns or a signal arrives
func Execute() {
	var cancel context.CancelFunc
	rootCtx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			logrus.Info("Interrupted")
			os.Exit(130)
		}
		logrus.WithError(err).Error("Error")
		os.Exit(1)
	}
}
