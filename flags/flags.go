package flags

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TESTDECK"

// prefixEnvVar joins the service env-var prefix with a flag's env suffix.
func prefixEnvVar(suffix string) []string {
	return []string{EnvVarPrefix + "_" + suffix}
}

var (
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: prefixEnvVar("CONFIG"),
		Usage:   "Path to the YAML config file (eg. 'testdeck.yaml')",
	}
	DatabaseDSN = &cli.StringFlag{
		Name:    "db-dsn",
		Value:   "",
		EnvVars: prefixEnvVar("DB_DSN"),
		Usage:   "Postgres DSN. Omit to run with the in-memory store.",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level (debug, info, warn, error)",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "0.0.0.0:8080",
		EnvVars: prefixEnvVar("HEALTHZ_ADDR"),
		Usage:   "Listen address for the healthz endpoint",
	}
	MetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		Value:   "0.0.0.0:7300",
		EnvVars: prefixEnvVar("METRICS_ADDR"),
		Usage:   "Listen address for the prometheus metrics endpoint",
	}
	DispatchQueueSize = &cli.IntFlag{
		Name:    "dispatch-queue-size",
		Value:   256,
		EnvVars: prefixEnvVar("DISPATCH_QUEUE_SIZE"),
		Usage:   "Buffer size of the side-effect dispatch queue",
	}
	SeedFile = &cli.StringFlag{
		Name:    "seed-file",
		Value:   "",
		EnvVars: prefixEnvVar("SEED_FILE"),
		Usage:   "Path to a YAML seed file of projects, suites and test cases to create at startup",
	}
	DispatchWorkers = &cli.IntFlag{
		Name:    "dispatch-workers",
		Value:   4,
		EnvVars: prefixEnvVar("DISPATCH_WORKERS"),
		Usage:   "Max concurrent side-effect handlers per completion event",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	ConfigFile,
	DatabaseDSN,
	LogLevel,
	HealthzAddr,
	MetricsAddr,
	SeedFile,
	DispatchQueueSize,
	DispatchWorkers,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}

// FlagNameToEnvVarName converts a CLI flag name to its env-var form.
func FlagNameToEnvVarName(name string) string {
	return EnvVarPrefix + "_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}
