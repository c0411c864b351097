package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jobrun/blobcache/internal/admin"
	"github.com/jobrun/blobcache/internal/audit"
	"github.com/jobrun/blobcache/internal/config"
	"github.com/jobrun/blobcache/internal/facade"
	"github.com/jobrun/blobcache/internal/metrics"
	"github.com/jobrun/blobcache/internal/store"
	"github.com/jobrun/blobcache/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the server role: accept connections and serve local put/get",
	RunE: func(c *cobra.Command, args []string) error {
		return runRole("server", func(f *facade.Facade, st *store.FileStore, m *metrics.Metrics, al audit.Logger, tr *tracing.Provider) error {
			return f.InitServer(":"+strconv.Itoa(cfg.Port), st, m, al, tr, log)
		})
	},
}

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "run the proxy role: local-first get with read-through fetch",
	RunE: func(c *cobra.Command, args []string) error {
		if cfg.ServerAddr == "" {
			return fmt.Errorf("proxy requires --server-addr")
		}
		return runRole("proxy", func(f *facade.Facade, st *store.FileStore, m *metrics.Metrics, al audit.Logger, tr *tracing.Provider) error {
			return f.InitProxy(cfg.ServerAddr, st, m, al, tr, log)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(proxyCmd)
}

// runRole wires up the shared ambient stack (store, metrics, audit, tracing,
// admin HTTP server), activates a role via initRole, and blocks until a
// termination signal triggers a clean shutdown.
func runRole(role string, initRole func(*facade.Facade, *store.FileStore, *metrics.Metrics, audit.Logger, *tracing.Provider) error) error {
	ctx := context.Background()

	m := metrics.NewMetrics()
	m.StartSystemMetricsCollector()
	defer m.StopSystemMetricsCollector()

	al := audit.NewLogger(1000, nil)
	defer al.Close()

	tr, err := tracing.New(ctx, cfg.Tracing, "", role, log)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer tr.Shutdown(ctx)

	var idx store.Index
	if cfg.RedisAddr != "" {
		idx = store.NewRedisIndex(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), role, log)
	}
	st, err := store.Open(cfg.Directory, idx, log)
	if err != nil {
		return fmt.Errorf("opening storage directory: %w", err)
	}

	f := facade.New()
	if err := initRole(f, st, m, al, tr); err != nil {
		return fmt.Errorf("initializing role: %w", err)
	}
	defer f.Shutdown()

	adminSrv := admin.New(":"+strconv.Itoa(cfg.AdminPort), st, m, log)
	adminSrv.Start()
	defer adminSrv.Shutdown(ctx)

	loader.WatchReload(func(config.Config) {
		log.Info("configuration reload observed; admin_port/tracing/redis_addr changes require a restart to take effect")
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")
	return nil
}
