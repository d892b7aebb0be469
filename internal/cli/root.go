// Package cli wires the trader command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/internal/logger"
)

// Version is stamped at build time.
var Version = "dev"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
	Verbose    bool
}

// loadConfig returns the file config when --config is set, else defaults.
func (ro *rootOptions) loadConfig() (*config.Config, error) {
	if ro.ConfigPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(ro.ConfigPath)
}

func (ro *rootOptions) logger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if ro.LogLevel != "" {
		level = ro.LogLevel
	}
	return logger.New(level, ro.Verbose)
}

func NewRootCmd() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "trader",
		Short:         "Paper-trading backtester: replay, risk gate, reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&ro.ConfigPath, "config", "", "Path to config file (optional)")
	cmd.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	cmd.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Enable detailed step logging")

	cmd.AddCommand(
		newBacktestCmd(ro),
		newConfigCmd(),
		newJournalCmd(),
		newDataCmd(ro),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trader %s\n", Version)
		},
	})

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
