// Package tracker parses tracker service flags and launches the service.
package tracker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/rollcall/internal/platform/cmd"
	server "github.com/louisbranch/rollcall/internal/tracker/app"
)

// Config holds tracker command configuration.
type Config struct {
	Port          int           `env:"ROLLCALL_TRACKER_PORT"          envDefault:"8090"`
	HTTPAddr      string        `env:"ROLLCALL_TRACKER_HTTP_ADDR"     envDefault:"localhost:8091"`
	DBPath        string        `env:"ROLLCALL_TRACKER_DB_PATH"       envDefault:"data/tracker.db"`
	TickInterval  time.Duration `env:"ROLLCALL_TRACKER_TICK_INTERVAL" envDefault:"15s"`
	LootTiersPath string        `env:"ROLLCALL_TRACKER_LOOT_TIERS"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The tracker gRPC server port")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The tracker HTTP server address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the tracker sqlite database")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "Settle cadence for running sessions")
	fs.StringVar(&cfg.LootTiersPath, "loot-tiers", cfg.LootTiersPath, "Optional CSV file of loot tiers")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the tracker service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTracker, func(context.Context) error {
		return server.Run(ctx, server.Options{
			GRPCPort:      cfg.Port,
			HTTPAddr:      cfg.HTTPAddr,
			DBPath:        cfg.DBPath,
			TickInterval:  cfg.TickInterval,
			LootTiersPath: cfg.LootTiersPath,
		})
	})
}
