// Package netlink parses NetLink command flags and starts the HTTP process.
package netlink

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/zenite-os/zenite/internal/platform/cmd"
	server "github.com/zenite-os/zenite/internal/services/netlink/app"
)

// Config holds NetLink command configuration.
type Config struct {
	server.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "NetLink HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "Postgres DSN, overrides -db-path")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL for realtime fan-out")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run serves NetLink until ctx is done.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceNetLink, func(ctx context.Context) error {
		if err := server.Run(ctx, cfg.Config); err != nil {
			return fmt.Errorf("serve netlink: %w", err)
		}
		return nil
	})
}
