package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	testdeck "github.com/testdeck/testdeck"
	"github.com/testdeck/testdeck/exitcodes"
	"github.com/testdeck/testdeck/flags"
	"github.com/testdeck/testdeck/registry"
	"github.com/testdeck/testdeck/service"
	"github.com/testdeck/testdeck/store"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "testdeck"
	app.Usage = "Test-management suite execution engine"
	app.Description = "testdeck manages hierarchical test suites and their execution records"
	app.Flags = flags.Flags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("application failed", "err", err)
		if code, ok := err.(cli.ExitCoder); ok {
			os.Exit(code.ExitCode())
		}
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(cliCtx *cli.Context) error {
	log, err := newLogger(cliCtx.String(flags.LogLevel.Name))
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.ConfigErr)
	}
	slog.SetDefault(log)

	cfg, err := testdeck.NewConfig(cliCtx, log)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create config: %v", err), exitcodes.ConfigErr)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	engine, err := testdeck.New(cfg, st, testdeck.Collaborators{})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SeedFile != "" {
		reg, err := registry.NewRegistry(registry.Config{Log: log, SeedFile: cfg.SeedFile})
		if err != nil {
			return cli.Exit(err.Error(), exitcodes.ConfigErr)
		}
		if err := reg.Apply(ctx, st, engine.Hierarchy(), "seed"); err != nil {
			return fmt.Errorf("failed to apply seed file: %w", err)
		}
	}

	svc := service.New(cfg.HealthzAddr, cfg.MetricsAddr, st.Ping, log)
	svc.Start(ctx)
	defer svc.Shutdown()

	if err := engine.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutdown signal received")
	return engine.Stop(context.Background())
}

func openStore(cfg *testdeck.Config) (store.Store, error) {
	if cfg.DatabaseDSN == "" {
		cfg.Log.Warn("no database DSN configured, using in-memory store")
		return store.NewMemStore(), nil
	}
	pg, err := store.OpenPG(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pg.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return pg, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), nil
}
