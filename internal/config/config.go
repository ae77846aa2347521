// Package config loads and hot-reloads the service's YAML configuration
// via viper, layering config.yaml with environment variable overrides.
package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the service's full runtime configuration: index storage,
// concurrency, background loop intervals, MySQL source, observability.
type Config struct {
	IndexDir         string        `mapstructure:"index_dir"`
	BuildThreads     int           `mapstructure:"build_threads"`
	QueryThreads     int           `mapstructure:"query_threads"`
	FlushInterval    time.Duration `mapstructure:"flush_interval"`
	OptimizeInterval time.Duration `mapstructure:"optimize_interval"`

	MySQL MySQLConfig `mapstructure:"mysql"`

	Observability ObservabilityConfig `mapstructure:"observability"`

	HTTPAddr string `mapstructure:"http_addr"`
}

// MySQLConfig configures the binlog ingestion source. BinlogFile and
// BinlogPosition seed the resumable (file, position) cursor the fetcher
// starts dumping from; left empty, the fetcher picks the first event of
// the earliest retained binlog file (a cold start, not a resume).
type MySQLConfig struct {
	Addr           string `mapstructure:"addr"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	Table          string `mapstructure:"table"`
	BinlogFile     string `mapstructure:"binlog_file"`
	BinlogPosition uint32 `mapstructure:"binlog_position"`
}

// ObservabilityConfig configures the OTEL bootstrap (see
// internal/observability).
type ObservabilityConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	UseStdout    bool   `mapstructure:"use_stdout"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("index_dir", "./data")
	v.SetDefault("build_threads", 4)
	v.SetDefault("query_threads", 4)
	v.SetDefault("flush_interval", "30s")
	v.SetDefault("optimize_interval", "5m")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("observability.service_name", "proximabe")
	v.SetDefault("observability.use_stdout", true)
}

// Loader reads the one config file it is given and republishes the parsed
// Config on every on-disk change via an fsnotify-backed watch.
type Loader struct {
	v *viper.Viper

	mu  sync.RWMutex
	cur Config
}

// NewLoader reads configPath (a single YAML file) plus environment
// variable overrides prefixed PROXIMABE_, and starts watching it for
// changes.
func NewLoader(configPath string) (*Loader, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("PROXIMABE")
	v.AutomaticEnv()
	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}

	l := &Loader{v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("config: reload triggered by %s on %s", e.Op, e.Name)
		if err := l.reload(); err != nil {
			log.Printf("config: reload failed, keeping previous config: %v", err)
		}
	})
	return l, nil
}

func (l *Loader) reload() error {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	l.mu.Lock()
	l.cur = cfg
	l.mu.Unlock()
	return nil
}

// Current returns a snapshot of the live configuration.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}
