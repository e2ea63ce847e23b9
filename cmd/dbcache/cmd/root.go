/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ssargent/dbcache/pkg/config"
	"github.com/ssargent/dbcache/pkg/di"
)

// errNothingDecoded makes the process exit non-zero when a run decoded no record
var errNothingDecoded = errors.New("no record decoded")

var deps *di.Container

// SetContainer injects the dependency container. When unset the root command
// builds one from the configuration file and flags.
func SetContainer(c *di.Container) {
	deps = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dbcache",
	Short: "dbcache - game client cache decoder",
	Long: `dbcache decodes the build-versioned binary records in game client caches:
hotfix DBCache.bin containers and per-type .wdb caches.

Record layouts come from schema files, one <Table>.yaml per table.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if deps != nil {
			return nil
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cmd.ErrOrStderr(), cfg.Logging.Level)
		SetContainer(di.NewContainer(cfg, logger))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run executes the root command. Metrics are written and the container closed
// whether or not the command failed.
func run() (err error) {
	defer func() {
		if ferr := finish(); err == nil {
			err = ferr
		}
	}()
	return rootCmd.Execute()
}

// finish writes --metrics-out and releases the container
func finish() error {
	if deps == nil {
		return nil
	}
	var werr error
	if path, _ := rootCmd.PersistentFlags().GetString("metrics-out"); path != "" {
		if err := deps.GetMetrics().WriteFile(path); err != nil {
			werr = errors.Wrap(err, "writing metrics")
		}
	}
	if err := deps.Close(); err != nil && werr == nil {
		return err
	}
	return werr
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default ~/.config/dbcache/config.yaml)")
	rootCmd.PersistentFlags().StringP("schema-dir", "s", "", "Directory of <Table>.yaml schema files")
	rootCmd.PersistentFlags().IntP("workers", "w", 0, "Concurrent payload decoders (0 uses GOMAXPROCS)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("metrics-out", "", "Write metrics in text exposition format to this file")
}

// loadConfig reads the config file when present and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	explicit := configPath != ""
	if !explicit {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := config.DefaultConfig()
	if explicit || config.ConfigExists(configPath) {
		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("schema-dir") {
		cfg.SchemaDir, _ = flags.GetString("schema-dir")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// newLogger builds the diagnostic logger: logfmt with UTC timestamps, filtered by level
func newLogger(w io.Writer, lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var allow level.Option
	switch lvl {
	case "debug":
		allow = level.AllowDebug()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		allow = level.AllowInfo()
	}
	return level.NewFilter(logger, allow)
}

// newOutput is the logfmt writer for per-entry result lines
func newOutput(w io.Writer) log.Logger {
	return log.NewLogfmtLogger(w)
}
