package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/mcache"
	"github.com/unkn0wn-root/mcache/codec"
	"github.com/unkn0wn-root/mcache/internal/util"
	mlogrus "github.com/unkn0wn-root/mcache/log/logrus"
	"github.com/unkn0wn-root/mcache/poolstore"
	pr "github.com/unkn0wn-root/mcache/provider"
	"github.com/unkn0wn-root/mcache/provider/bigcache"
	"github.com/unkn0wn-root/mcache/provider/gomemcache"
	"github.com/unkn0wn-root/mcache/provider/ristretto"
)

const (
	backendMemcached = "memcached"
	backendRistretto = "ristretto"
	backendBigcache  = "bigcache"
)

type app struct {
	configPath   string
	persistentID string
	servers      []string
	timeout      time.Duration
	backend      string
	redisAddr    string
	redisNS      string
	verbose      bool
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "mcachectl",
		Short: "Operate on a memcached pool through the mcache adapter",
		Long: heredoc.Doc(`
			mcachectl runs single cache operations against a memcached server pool.

			Servers come from --config (a YAML file with a top-level "memcached" key)
			and from repeated --server flags, which replace the configured list.
			Keys are validated before any network I/O.
		`),
		Example: heredoc.Doc(`
			$ mcachectl --server 10.0.0.1:11211:2 --server 10.0.0.2:11211 set greeting hello --ttl 10m
			$ mcachectl --config cache.yaml get-multi a b c
			$ mcachectl --backend ristretto set k v
		`),
		SilenceUsage: true,
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.configPath, "config", "c", "", "config file (YAML or JSON)")
	f.StringVar(&a.persistentID, "persistent-id", "", "share one connection pool under this identifier")
	f.StringArrayVarP(&a.servers, "server", "s", nil, "memcached server as host:port[:weight] or /socket[:weight]; repeatable")
	f.DurationVar(&a.timeout, "timeout", 5*time.Second, "overall timeout per command")
	f.StringVar(&a.backend, "backend", backendMemcached, "memcached, or an in-process backend for dry runs: ristretto, bigcache")
	f.StringVar(&a.redisAddr, "redis", "", "redis address holding pool membership; empty keeps it in process")
	f.StringVar(&a.redisNS, "redis-namespace", "mcachectl", "redis key namespace for pool membership")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newGetCommand(a),
		newSetCommand(a),
		newDeleteCommand(a),
		newHasCommand(a),
		newGetMultiCommand(a),
		newSetMultiCommand(a),
		newDeleteMultiCommand(a),
		newClearCommand(a),
		newServersCommand(a),
		newVersionCommand(),
	)
	return root
}

// run builds a cache, hands it to fn and closes it.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, c mcache.Cache[string]) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()

	opts, err := a.options(cmd)
	if err != nil {
		return err
	}
	c, err := mcache.New(ctx, opts)
	if err != nil {
		return err
	}
	defer c.Close(ctx)
	return fn(ctx, c)
}

func (a *app) options(cmd *cobra.Command) (mcache.Options[string], error) {
	cfg := mcache.DefaultConfig()
	if a.configPath != "" {
		var err error
		if cfg, err = mcache.LoadConfigFile(a.configPath); err != nil {
			return mcache.Options[string]{}, err
		}
	}

	opts := mcache.Options[string]{Codec: codec.String{}, Open: a.open}
	if err := mcache.ApplyConfig(cfg, &opts); err != nil {
		return opts, err
	}
	if cmd.Flags().Changed("persistent-id") {
		opts.PersistentID = a.persistentID
	}
	if len(a.servers) > 0 {
		servers := make([]mcache.Server, 0, len(a.servers))
		for _, s := range a.servers {
			host, port, weight, err := util.SplitHostPortWeight(s)
			if err != nil {
				return opts, fmt.Errorf("%w: --server %q: %v", mcache.ErrInvalidInput, s, err)
			}
			servers = append(servers, mcache.Server{Host: host, Port: port, Weight: weight})
		}
		opts.Servers = servers
	}

	l := logrus.New()
	l.SetOutput(cmd.ErrOrStderr())
	l.SetLevel(logrus.WarnLevel)
	if a.verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	opts.Logger = mlogrus.New(l)
	return opts, nil
}

func (a *app) open(ctx context.Context, persistentID string) (pr.Provider, error) {
	pool, err := a.poolStore(persistentID)
	if err != nil {
		return nil, err
	}

	var p pr.Provider
	switch a.backend {
	case backendMemcached:
		p, err = gomemcache.New(ctx, gomemcache.Config{PoolID: persistentID, Pool: pool, Timeout: a.timeout})
	case backendRistretto:
		p, err = ristretto.New(ristretto.Config{
			NumCounters: 1e5,
			MaxCost:     64 << 20,
			BufferItems: 64,
			PoolID:      persistentID,
			Pool:        pool,
		})
	case backendBigcache:
		p, err = bigcache.New(ctx, bigcache.Config{
			MaxEntriesInWindow: 1000,
			MaxEntrySize:       256,
			PoolID:             persistentID,
			Pool:               pool,
		})
	default:
		err = fmt.Errorf("unknown backend %q", a.backend)
	}
	if err != nil {
		if pool != nil {
			_ = pool.Close(ctx)
		}
		return nil, err
	}
	return p, nil
}

// poolStore returns nil when membership stays in process. Only persistent
// identifiers share membership through redis.
func (a *app) poolStore(persistentID string) (poolstore.PoolStore, error) {
	if a.redisAddr == "" || persistentID == "" {
		return nil, nil
	}
	return poolstore.NewRedis(poolstore.RedisConfig{
		Client:      redis.NewClient(&redis.Options{Addr: a.redisAddr}),
		Namespace:   a.redisNS,
		CloseClient: true,
	})
}
