// Package cmd implements the blobcache CLI: serve / proxy / put / get /
// geturl / config-init subcommands built on cobra, with settings loaded
// through internal/config's viper-backed loader.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jobrun/blobcache/internal/config"
)

var (
	cfgFile string
	verbose bool

	flagDirectory  string
	flagPort       int
	flagAdminPort  int
	flagServerAddr string
	flagTracing    string
	flagRedisAddr  string

	log    = logrus.New()
	loader *config.Loader
	cfg    config.Config
)

var rootCmd = &cobra.Command{
	Use:   "blobcache",
	Short: "content-addressed blob cache server, proxy, and client",
	Long: `blobcache is a content-addressed local blob cache. "serve" and "proxy" run
the two server-side roles; "put", "get", and "geturl" are stateless client
commands that speak the wire protocol directly against a running server.`,
}

// Execute adds all child commands to the root command and runs it. It is
// called by main.main and only needs to happen once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagDirectory, "directory", "", "storage base directory (default: OS temp dir)")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "server role TCP port")
	rootCmd.PersistentFlags().IntVar(&flagAdminPort, "admin-port", 0, "admin HTTP port")
	rootCmd.PersistentFlags().StringVar(&flagServerAddr, "server-addr", "", "remote server address (host:port)")
	rootCmd.PersistentFlags().StringVar(&flagTracing, "tracing-exporter", "", "tracing exporter: none, stdout, or otlp")
	rootCmd.PersistentFlags().StringVar(&flagRedisAddr, "redis-addr", "", "optional Redis existence-index address")
}

// initConfig builds the viper-backed Loader, binds the persistent flags over
// it, and snapshots the resulting Config. Run by cobra after flag parsing,
// before any subcommand's RunE.
func initConfig() {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	var err error
	loader, err = config.NewLoader(cfgFile, log)
	cobra.CheckErr(err)

	bindFlag(rootCmd, "directory", "blob-service.directory")
	bindFlag(rootCmd, "port", "blob-service.port")
	bindFlag(rootCmd, "admin-port", "blob-service.admin_port")
	bindFlag(rootCmd, "server-addr", "blob-service.server_addr")
	bindFlag(rootCmd, "tracing-exporter", "blob-service.tracing.exporter")
	bindFlag(rootCmd, "redis-addr", "blob-service.redis.addr")

	cfg = loader.Load()
}

func bindFlag(c *cobra.Command, flagName, key string) {
	flag := c.PersistentFlags().Lookup(flagName)
	if flag == nil || !flag.Changed {
		return
	}
	cobra.CheckErr(loader.BindPFlag(key, flag))
}
