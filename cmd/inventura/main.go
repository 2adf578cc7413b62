// Command inventura serves the equipment accountability API and runs its
// maintenance jobs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/inventura/internal/config"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configPath string
	database   string
	replica    string
	logFile    string
	logLevel   string
}

// load reads the configuration and applies flags the user set explicitly.
func (o *rootOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = o.database
	}
	if flags.Changed("replica") {
		cfg.Replica = o.replica
	}
	if flags.Changed("log") {
		cfg.LogFile = o.logFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	return cfg, cfg.Validate()
}

// setup loads the configuration and installs the logger. The returned
// cleanup is never nil.
func (o *rootOptions) setup(cmd *cobra.Command) (config.Config, func(), error) {
	cfg, err := o.load(cmd)
	if err != nil {
		return config.Config{}, func() {}, err
	}
	level, _ := cfg.Level()
	cleanup, err := setupLogger(cfg.LogFile, level)
	if err != nil {
		return config.Config{}, func() {}, err
	}
	return cfg, cleanup, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "inventura",
		Short:         "Equipment accountability server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaults := config.Default()
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "config file (.toml, .yaml or .yml)")
	cmd.PersistentFlags().StringVarP(&opts.database, "db", "d", defaults.Database, "SQLite path or postgres:// DSN")
	cmd.PersistentFlags().StringVar(&opts.replica, "replica", defaults.Replica, "local replica file")
	cmd.PersistentFlags().StringVarP(&opts.logFile, "log", "l", "", "log file path (default: stdout/stderr only)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", defaults.LogLevel, "log level (debug|info|warn|error)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newModeCommand(opts))
	cmd.AddCommand(newResyncCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
