package app

import (
	"time"

	"github.com/zenite-os/zenite/internal/platform/logging"
	"github.com/zenite-os/zenite/internal/platform/timeouts"
	"github.com/zenite-os/zenite/internal/services/netlink/archive"
)

// Config defines the inputs of the NetLink process.
type Config struct {
	HTTPAddr string `env:"ZENITE_NETLINK_HTTP_ADDR" envDefault:":8088"`
	// DBPath is the SQLite file used when no Postgres DSN is set.
	DBPath      string `env:"ZENITE_NETLINK_DB_PATH" envDefault:"data/netlink.db"`
	PostgresDSN string `env:"ZENITE_POSTGRES_DSN"`
	// RedisURL enables cross-instance realtime fan-out.
	RedisURL    string        `env:"ZENITE_REDIS_URL"`
	TokenSecret string        `env:"ZENITE_TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"ZENITE_TOKEN_TTL" envDefault:"168h"`

	Archive archive.Config
	Log     logging.Config

	ReadHeaderTimeout time.Duration `env:"ZENITE_NETLINK_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `env:"ZENITE_NETLINK_SHUTDOWN_TIMEOUT"`
}

func (c Config) withDefaults() Config {
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = timeouts.Shutdown
	}
	return c
}
