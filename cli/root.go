// Package cli implements the agridx command.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/VanDung-dev/AgriDx-Engine/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "agridx",
	Short:        "AgriDx engine: cached backend access, batch uploads and processing workers",
	SilenceUsage: true,
}

// Execute is the entry point called from cmd/agridx/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	fs := rootCmd.PersistentFlags()
	fs.StringVar(&cfgFile, "config", "", "config file path (default: ./agridx.yaml)")
	fs.String("log-level", "info", "log level: debug | info | warn | error")
	fs.String("base-url", "", "backend API base URL")
	fs.Int("concurrency", 4, "maximum in-flight requests for batch commands")
	fs.String("cache-backend", config.BackendMemory, "cache backend: memory | redis | postgres | arrow")
	fs.Duration("cache-ttl", time.Hour, "cache entry freshness window")
	fs.String("redis-addr", "localhost:6379", "Redis address (host:port)")
	fs.String("postgres-dsn", "", "PostgreSQL DSN")
	fs.String("cache-file", "agridx-cache.arrow", "cache file for the arrow backend")
	fs.String("worker-addr", "tcp://127.0.0.1:5560", "worker server ZeroMQ endpoint")
	fs.String("worker-token", "", "shared worker token (env: AGRIDX_WORKER_TOKEN)")
	fs.String("metrics-addr", "", "Prometheus metrics address; empty disables")
	fs.String("otel-endpoint", "", "OTLP HTTP endpoint for tracing; empty disables")
	fs.Float64("trace-sample-ratio", 1.0, "fraction of new traces to keep (0..1)")
	fs.Duration("request-timeout", 30*time.Second, "per-request HTTP timeout")
	fs.Int("max-retries", 3, "retry attempts for transient HTTP failures")

	bindFlag("log_level", fs, "log-level")
	bindFlag("base_url", fs, "base-url")
	bindFlag("concurrency", fs, "concurrency")
	bindFlag("cache_backend", fs, "cache-backend")
	bindFlag("cache_ttl", fs, "cache-ttl")
	bindFlag("redis_addr", fs, "redis-addr")
	bindFlag("postgres_dsn", fs, "postgres-dsn")
	bindFlag("cache_file", fs, "cache-file")
	bindFlag("worker_addr", fs, "worker-addr")
	bindFlag("worker_token", fs, "worker-token")
	bindFlag("metrics_addr", fs, "metrics-addr")
	bindFlag("otel_endpoint", fs, "otel-endpoint")
	bindFlag("trace_sample_ratio", fs, "trace-sample-ratio")
	bindFlag("request_timeout", fs, "request-timeout")
	bindFlag("max_retries", fs, "max-retries")
	_ = viper.BindEnv("worker_token", "AGRIDX_WORKER_TOKEN")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.SetConfigName("agridx")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(home + "/.agridx")
	}

	viper.SetEnvPrefix("AGRIDX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "error reading config file:", err)
			os.Exit(1)
		}
	}
}

func bindFlag(viperKey string, fs *pflag.FlagSet, flagName string) {
	if err := viper.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("bindFlag %q → %q: %v", flagName, viperKey, err))
	}
}
