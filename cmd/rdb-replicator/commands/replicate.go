package commands

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/wojas/go-healthz"
	"golang.org/x/sync/errgroup"

	replicator "github.com/raniellyferreira/redis-replicator"
	"github.com/raniellyferreira/redis-replicator/metrics"
	"github.com/raniellyferreira/redis-replicator/observers"
	"github.com/raniellyferreira/redis-replicator/replication"
)

// connectWarnAfter is how long the connecting phase may last before the
// health check warns
const connectWarnAfter = 30 * time.Second

var replicateJSON bool

func init() {
	rootCmd.AddCommand(replicateCmd)
	replicateCmd.Flags().BoolVar(&replicateJSON, "json", false, "Write keys and operations to stdout as JSON lines")
}

var replicateCmd = &cobra.Command{
	Use:   "replicate [file]",
	Short: "Follow a master, logging snapshot progress and serving metrics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplicate(cmd)
	},
}

func runReplicate(cmd *cobra.Command) error {
	l := logrus.WithField("source", sourceName(conf))
	obs := []replication.Observer{
		observers.NewLoadStats(replication.NewLogrusLogger(l)),
	}
	var jw *observers.JSONWriter
	if replicateJSON {
		jw = observers.NewJSONWriter(cmd.OutOrStdout())
		obs = append(obs, jw)
	}

	opts, release, err := options(conf)
	if err != nil {
		return err
	}
	defer release()
	opts = append(opts, replicator.WithMetrics(metrics.NewCollector(prometheus.DefaultRegisterer)))

	r, err := replicator.New(opts...)
	if err != nil {
		return err
	}
	for _, o := range obs {
		if err := r.AddObserver(o); err != nil {
			return err
		}
	}
	registerHealth(r)

	runCtx, stop := context.WithCancel(rootCtx)
	defer stop()
	eg, ctx := errgroup.WithContext(runCtx)
	eg.Go(func() error {
		// Ending replication stops the HTTP server
		defer stop()
		defer func() {
			if jw != nil {
				if err := jw.Flush(); err != nil {
					l.WithError(err).Error("Flush JSON output failed")
				}
			}
		}()
		err := r.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.WithError(err).Error("Replication failed")
			return err
		}
		st := r.Stats()
		l.WithFields(logrus.Fields{
			"entities":   st.Entities,
			"operations": st.Operations,
			"offset":     st.Offset,
		}).Info("Replication ended")
		return nil
	})

	if conf.HTTP.Address != "" {
		srv := &http.Server{
			Addr:              conf.HTTP.Address,
			ReadHeaderTimeout: 10 * time.Second,
		}
		http.Handle("/metrics", promhttp.Handler())

		eg.Go(func() error {
			l.WithField("address", conf.HTTP.Address).Info("HTTP stats server enabled")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "http server")
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	} else {
		l.Info("HTTP stats server disabled")
	}

	return eg.Wait()
}

// registerHealth publishes the replication phase on /healthz
func registerHealth(r *replicator.Replicator) {
	healthz.AddBuildInfo()
	if hostname, err := os.Hostname(); err == nil {
		healthz.SetMeta("hostname", hostname)
	}
	healthz.SetMeta("version", version)
	healthz.SetMeta("source", sourceName(conf))

	started := time.Now()
	healthz.Register("replication", time.Second, func() error {
		switch r.Phase() {
		case replication.PhaseFailed:
			return errors.New("replication failed")
		case replication.PhaseClosed:
			return healthz.Warnf("replication ended")
		case replication.PhaseConnecting, replication.PhaseReceivingSnapshot:
			if since := time.Since(started); since >= connectWarnAfter {
				return healthz.Warnf("snapshot not received after %s", since.Round(time.Second))
			}
		}
		return nil
	})
}
