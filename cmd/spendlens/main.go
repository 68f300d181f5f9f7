// Package main is the entry point for the spendlens CLI. It loads a cost
// snapshot (from a JSON file or the SQLite store) and answers aggregation,
// reconciliation, waste, forecast and recommendation queries against it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/j-veylop/spendlens/internal/config"
	"github.com/j-veylop/spendlens/internal/db"
	"github.com/j-veylop/spendlens/internal/logger"
	"github.com/j-veylop/spendlens/internal/services"
	"github.com/j-veylop/spendlens/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    version.AppName,
		Usage:   "multi-tenant cloud and license spend analysis",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "snapshot",
				Aliases: []string{"s"},
				Usage:   "Raw snapshot JSON file (overrides SNAPSHOT_PATH)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite snapshot store (overrides DATABASE_PATH)",
			},
			&cli.StringFlag{
				Name:  "catalog",
				Usage: "YAML catalog of SKU prices and dev/test markers (overrides CATALOG_PATH)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print results as JSON",
			},
		},
		Commands: []*cli.Command{
			aggregateCommand(),
			reconcileCommand(),
			wasteCommand(),
			forecastCommand(),
			recommendCommand(),
			reportCommand(),
			watchCommand(),
			importCommand(),
			snapshotsCommand(),
		},
	}
}

// loadConfig reads configuration and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if v := c.String("snapshot"); v != "" {
		cfg.SnapshotPath = v
		// An explicit file wins over a configured store.
		if !c.IsSet("db") {
			cfg.DatabasePath = ""
		}
	}
	if v := c.String("db"); v != "" {
		cfg.DatabasePath = v
	}
	if v := c.String("catalog"); v != "" {
		cfg.CatalogPath = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// newManager builds a manager without loading anything.
func newManager(c *cli.Context) (*services.Manager, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := services.NewManager(cfg, catalog)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return mgr, cfg, nil
}

// openManager builds a manager and loads the latest snapshot, from the
// store when one is configured and from the snapshot file otherwise.
func openManager(c *cli.Context) (*services.Manager, error) {
	mgr, cfg, err := newManager(c)
	if err != nil {
		return nil, err
	}

	if cfg.DatabasePath != "" {
		database, err := db.New(cfg.DatabasePath)
		if err != nil {
			_ = mgr.Close()
			return nil, err
		}
		defer database.Close()
		if err := mgr.LoadDatabase(c.Context, database); err != nil {
			_ = mgr.Close()
			if errors.Is(err, db.ErrNoSnapshot) {
				return nil, fmt.Errorf("%s holds no snapshots; run import first", cfg.DatabasePath)
			}
			return nil, err
		}
		return mgr, nil
	}

	if err := mgr.LoadFile(cfg.SnapshotPath); err != nil {
		_ = mgr.Close()
		return nil, err
	}
	return mgr, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// output prints v as JSON under --json and the rendered text otherwise.
func output(c *cli.Context, v any, render func() string) error {
	if c.Bool("json") {
		return writeJSON(c.App.Writer, v)
	}
	_, err := fmt.Fprintln(c.App.Writer, render())
	return err
}
