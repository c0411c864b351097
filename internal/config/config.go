// Package config loads the blob cache's blob-service.* settings via viper,
// binding environment variables and an optional YAML file, and watches the
// file with fsnotify so non-identity-affecting keys can be hot-reloaded.
package config

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// TracingExporter selects which OpenTelemetry exporter the tracing package
// constructs.
type TracingExporter string

const (
	TracingNone    TracingExporter = "none"
	TracingStdout  TracingExporter = "stdout"
	TracingOTLP    TracingExporter = "otlp"
)

// Config holds every blob-service.* setting. Directory and Port are fixed at
// role construction and are never hot-reloaded, since changing either under
// a live FileStore would violate the single-storage-directory invariant.
// AdminPort, Tracing, and RedisAddr may be changed by a live reload.
type Config struct {
	// Directory is the base path under which blob-<user>-<pid> is created.
	// Empty means the OS temp directory.
	Directory string
	// Port is the TCP port the server role listens on.
	Port int
	// AdminPort is the HTTP port serving health/metrics/listing.
	AdminPort int
	// ServerAddr is the server the proxy role forwards to, host:port.
	ServerAddr string
	// Tracing selects the OpenTelemetry exporter.
	Tracing TracingExporter
	// RedisAddr, when non-empty, enables the optional existence index.
	RedisAddr string
}

const (
	keyDirectory       = "blob-service.directory"
	keyPort            = "blob-service.port"
	keyAdminPort       = "blob-service.admin_port"
	keyServerAddr      = "blob-service.server_addr"
	keyTracingExporter = "blob-service.tracing.exporter"
	keyRedisAddr       = "blob-service.redis.addr"
)

func defaults(v *viper.Viper) {
	v.SetDefault(keyDirectory, "")
	v.SetDefault(keyPort, 8080)
	v.SetDefault(keyAdminPort, 8081)
	v.SetDefault(keyServerAddr, "")
	v.SetDefault(keyTracingExporter, string(TracingNone))
	v.SetDefault(keyRedisAddr, "")
}

// Loader wraps a *viper.Viper bound to blob-service.* keys, with an
// optional file watch for hot-reload.
type Loader struct {
	v   *viper.Viper
	log *logrus.Entry
}

// NewLoader constructs a Loader. file may be empty to skip file-based
// config entirely (environment and defaults only).
func NewLoader(file string, log *logrus.Logger) (*Loader, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("BLOB_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return &Loader{v: v, log: log.WithField("component", "config")}, nil
}

// Load snapshots the current configuration.
func (l *Loader) Load() Config {
	return Config{
		Directory:  l.v.GetString(keyDirectory),
		Port:       l.v.GetInt(keyPort),
		AdminPort:  l.v.GetInt(keyAdminPort),
		ServerAddr: l.v.GetString(keyServerAddr),
		Tracing:    TracingExporter(l.v.GetString(keyTracingExporter)),
		RedisAddr:  l.v.GetString(keyRedisAddr),
	}
}

// ReloadDebounce bounds how often WatchReload's callback is allowed to fire
// in response to editor-induced multi-write file events.
const ReloadDebounce = 250 * time.Millisecond

// WatchReload invokes onChange with the freshly loaded Config whenever the
// backing file changes on disk, debounced by ReloadDebounce. It is a no-op
// if the loader was built without a file. Only AdminPort, Tracing, and
// RedisAddr should be acted on by onChange; Directory/Port/ServerAddr
// changes are fixed at role construction and a live reload cannot apply
// them.
func (l *Loader) WatchReload(onChange func(Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	var last time.Time
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if since := time.Since(last); since < ReloadDebounce {
			return
		}
		last = time.Now()
		l.log.WithField("file", e.Name).Info("config file changed, reloading hot-reloadable keys")
		onChange(l.Load())
	})
	l.v.WatchConfig()
}

// BindPFlag binds a cobra flag's current value into the loader's viper
// instance under key, letting a CLI flag override config-file and
// environment values.
func (l *Loader) BindPFlag(key string, flag *pflag.Flag) error {
	return l.v.BindPFlag(key, flag)
}
