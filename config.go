package testdeck

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/testdeck/testdeck/flags"
)

// Config holds the application configuration
type Config struct {
	DatabaseDSN       string // Postgres DSN; empty selects the in-memory store
	LogLevel          string
	HealthzAddr       string
	MetricsAddr       string
	SeedFile          string // Optional YAML seed applied at startup
	DispatchQueueSize int    // Buffer size of the side-effect dispatch queue
	DispatchWorkers   int    // Max concurrent side-effect handlers per event
	Log               *slog.Logger
}

// fileConfig mirrors Config for YAML loading.
type fileConfig struct {
	DatabaseDSN       string `yaml:"db_dsn"`
	LogLevel          string `yaml:"log_level"`
	HealthzAddr       string `yaml:"healthz_addr"`
	MetricsAddr       string `yaml:"metrics_addr"`
	DispatchQueueSize int    `yaml:"dispatch_queue_size"`
	DispatchWorkers   int    `yaml:"dispatch_workers"`
}

// NewConfig creates a new Config from cli context. Values from the YAML
// config file (when given) are defaults; flags set on the command line or
// through the environment override them.
func NewConfig(ctx *cli.Context, log *slog.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	cfg := &Config{
		DatabaseDSN:       ctx.String(flags.DatabaseDSN.Name),
		LogLevel:          ctx.String(flags.LogLevel.Name),
		HealthzAddr:       ctx.String(flags.HealthzAddr.Name),
		MetricsAddr:       ctx.String(flags.MetricsAddr.Name),
		SeedFile:          ctx.String(flags.SeedFile.Name),
		DispatchQueueSize: ctx.Int(flags.DispatchQueueSize.Name),
		DispatchWorkers:   ctx.Int(flags.DispatchWorkers.Name),
		Log:               log,
	}

	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		fc, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		if !ctx.IsSet(flags.DatabaseDSN.Name) && fc.DatabaseDSN != "" {
			cfg.DatabaseDSN = fc.DatabaseDSN
		}
		if !ctx.IsSet(flags.LogLevel.Name) && fc.LogLevel != "" {
			cfg.LogLevel = fc.LogLevel
		}
		if !ctx.IsSet(flags.HealthzAddr.Name) && fc.HealthzAddr != "" {
			cfg.HealthzAddr = fc.HealthzAddr
		}
		if !ctx.IsSet(flags.MetricsAddr.Name) && fc.MetricsAddr != "" {
			cfg.MetricsAddr = fc.MetricsAddr
		}
		if !ctx.IsSet(flags.DispatchQueueSize.Name) && fc.DispatchQueueSize > 0 {
			cfg.DispatchQueueSize = fc.DispatchQueueSize
		}
		if !ctx.IsSet(flags.DispatchWorkers.Name) && fc.DispatchWorkers > 0 {
			cfg.DispatchWorkers = fc.DispatchWorkers
		}
	}

	if cfg.DispatchQueueSize <= 0 {
		return nil, fmt.Errorf("dispatch queue size must be positive, got %d", cfg.DispatchQueueSize)
	}
	if cfg.DispatchWorkers <= 0 {
		return nil, fmt.Errorf("dispatch workers must be positive, got %d", cfg.DispatchWorkers)
	}
	return cfg, nil
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return &fc, nil
}
