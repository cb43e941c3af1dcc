package commands

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/raniellyferreira/redis-replicator/observers"
	"github.com/raniellyferreira/redis-replicator/replication"
)

// KeyspaceStats are the key counts of one database
type KeyspaceStats struct {
	Keys    int64
	Expires int64
}

// KeyspaceInfo maps a database index to its counts
type KeyspaceInfo map[int]KeyspaceStats

// ErrKeyspaceDiffers is returned when the snapshot does not match the
// reference server
var ErrKeyspaceDiffers = errors.New("keyspace differs from reference")

var (
	keyspaceRef      string
	keyspaceRefPass  string
	keyspaceCtxLimit time.Duration
)

func init() {
	rootCmd.AddCommand(keyspaceCmd)
	keyspaceCmd.Flags().StringVar(&keyspaceRef, "compare", "", "Reference Redis endpoint (host:port) to compare INFO keyspace with")
	keyspaceCmd.Flags().StringVar(&keyspaceRefPass, "compare-password", "", "Password of the reference endpoint")
	keyspaceCmd.Flags().DurationVar(&keyspaceCtxLimit, "compare-timeout", 5*time.Second, "Timeout of the INFO request")
}

var keyspaceCmd = &cobra.Command{
	Use:   "keyspace [file]",
	Short: "Print per-database key counts of a snapshot, optionally comparing them with a live server",
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

		snap := make(KeyspaceInfo)
		for _, db := range stats.Databases() {
			ds, _ := stats.Database(db)
			snap[db] = KeyspaceStats{Keys: ds.Keys, Expires: ds.Expires}
		}

		out := cmd.OutOrStdout()
		if keyspaceRef == "" {
			printKeyspace(out, snap)
			return nil
		}

		ref, err := fetchKeyspaceInfo(rootCtx, keyspaceRef, keyspaceRefPass, keyspaceCtxLimit)
		if err != nil {
			return errors.Wrapf(err, "keyspace of %s", keyspaceRef)
		}
		if n := compareKeyspaceInfo(out, ref, snap, conf.Filters.Databases); n > 0 {
			return errors.Wrapf(ErrKeyspaceDiffers, "%d differences", n)
		}
		return nil
	},
}

// fetchKeyspaceInfo runs INFO keyspace against addr
func fetchKeyspaceInfo(ctx context.Context, addr, password string, timeout time.Duration) (KeyspaceInfo, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: timeout,
	})
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	info, err := client.Info(ctx, "keyspace").Result()
	if err != nil {
		return nil, err
	}
	return parseKeyspaceInfo(info), nil
}

// Matches lines like: db0:keys=2,expires=0,avg_ttl=0
var dbLineRegex = regexp.MustCompile(`^db(\d+):keys=(\d+),expires=(\d+)`)

// parseKeyspaceInfo extracts the database lines of an INFO reply
func parseKeyspaceInfo(info string) KeyspaceInfo {
	keyspace := make(KeyspaceInfo)
	for _, line := range strings.Split(info, "\n") {
		m := dbLineRegex.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		db, _ := strconv.Atoi(m[1])
		keys, _ := strconv.ParseInt(m[2], 10, 64)
		expires, _ := strconv.ParseInt(m[3], 10, 64)
		keyspace[db] = KeyspaceStats{Keys: keys, Expires: expires}
	}
	return keyspace
}

func printKeyspace(w io.Writer, k KeyspaceInfo) {
	dbs := lo.Keys(k)
	sort.Ints(dbs)
	for _, db := range dbs {
		fmt.Fprintf(w, "db%d:keys=%d,expires=%d\n", db, k[db].Keys, k[db].Expires)
	}
}

// compareKeyspaceInfo writes a per-database comparison and returns the
// number of differences. A non-empty only restricts the databases compared.
func compareKeyspaceInfo(w io.Writer, ref, snap KeyspaceInfo, only []int) int {
	dbs := lo.Uniq(append(lo.Keys(ref), lo.Keys(snap)...))
	if len(only) > 0 {
		dbs = lo.Intersect(dbs, only)
	}
	sort.Ints(dbs)

	differences := 0
	for _, db := range dbs {
		r, inRef := ref[db]
		s, inSnap := snap[db]
		switch {
		case !inRef:
			fmt.Fprintf(w, "db%d: missing in reference, snapshot has keys=%d,expires=%d\n", db, s.Keys, s.Expires)
			differences++
		case !inSnap:
			fmt.Fprintf(w, "db%d: missing in snapshot, reference has keys=%d,expires=%d\n", db, r.Keys, r.Expires)
			differences++
		case r != s:
			fmt.Fprintf(w, "db%d: differs, reference keys=%d,expires=%d snapshot keys=%d,expires=%d\n",
				db, r.Keys, r.Expires, s.Keys, s.Expires)
			differences++
		default:
			fmt.Fprintf(w, "db%d: match keys=%d,expires=%d\n", db, s.Keys, s.Expires)
		}
	}
	return differences
}
