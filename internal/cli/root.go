// Package cli implements the tabsync command line: one-off syncs, drop
// directory runs, snapshot inspection and offline merge previews.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/TabSync/internal/application"
	"github.com/JonMunkholm/TabSync/internal/config"
	"github.com/JonMunkholm/TabSync/internal/core"
	"github.com/JonMunkholm/TabSync/internal/logging"
)

// Options configures the root command. Zero values use the process
// environment, stdout/stderr and the OS filesystem.
type Options struct {
	Out     io.Writer
	Err     io.Writer
	Fs      afero.Fs
	Version string

	// Lookup replaces the environment. When set, no env file is loaded.
	Lookup config.Lookup
}

type cli struct {
	opts   Options
	cfg    *config.Config
	format Format

	envFile     string
	logLevel    string
	logFormat   string
	driver      string
	snapshotDir string
	formatFlag  string
}

// Execute runs the tabsync command line with args.
func Execute(ctx context.Context, args []string, opts Options) error {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the tabsync command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	c := &cli{opts: opts}

	root := &cobra.Command{
		Use:   "tabsync",
		Short: "Merge tabular exports into a remote system of record",
		Long: `tabsync merges CSV and XLSX exports into named datasets held by a
remote store. Rows are matched on a key column; new rows are appended,
changed rows are updated and every changed field is written to an
append-only audit dataset. Rows missing from an export are kept.

Configuration is read from the environment (and .env when present).
Flags override the matching variables.`,
		Version:           opts.Version,
		PersistentPreRunE: c.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	pf := root.PersistentFlags()
	pf.StringVar(&c.envFile, "env-file", "", "load variables from this file (default .env when present)")
	pf.StringVar(&c.driver, "store", "", "store driver: memory, postgres, sheets (overrides STORE_DRIVER)")
	pf.StringVar(&c.snapshotDir, "snapshot-dir", "", "snapshot directory (overrides SNAPSHOT_DIR)")
	pf.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&c.logFormat, "log-format", "", "log format: text, json")
	pf.StringVarP(&c.formatFlag, "format", "o", "", "output format: table, json, yaml")

	root.AddCommand(
		c.syncCommand(),
		c.syncDirCommand(),
		c.snapshotCommand(),
		c.mergeCommand(),
		c.datasetsCommand(),
	)
	return root
}

// setup loads configuration and logging before any command runs.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	base := c.opts.Lookup
	if base == nil {
		if err := loadEnvFile(c.envFile); err != nil {
			return err
		}
		base = os.LookupEnv
	}

	flags := map[string]string{
		"STORE_DRIVER": c.driver,
		"SNAPSHOT_DIR": c.snapshotDir,
		"LOG_LEVEL":    c.logLevel,
		"LOG_FORMAT":   c.logFormat,
	}
	cfg, err := config.LoadFrom(config.Overlay(flags, base))
	if err != nil {
		return err
	}

	format, err := ParseFormat(c.formatFlag, c.opts.Out)
	if err != nil {
		return err
	}

	logging.SetupWriter(c.opts.Err, cfg.Logging.Level, cfg.Logging.Format)
	c.cfg = cfg
	c.format = format
	return nil
}

// loadEnvFile loads path, or .env when path is empty. A missing default
// .env is fine.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func (c *cli) open(ctx context.Context) (*application.App, error) {
	return application.NewWithFs(ctx, c.cfg, c.opts.Fs)
}

func withCLITrigger(ctx context.Context) context.Context {
	return core.ContextWithTrigger(ctx, core.Trigger{Source: "cli"})
}
