package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage backtest configuration files.

Examples:
  trader config init --output backtest.yaml
  trader config validate --file backtest.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created default configuration: %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "backtest.yaml", "output config file path")

	var file string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromFile(file)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration valid: %s\n", file)
			fmt.Fprintf(out, "  Capital:  %.2f\n", cfg.Account.InitialCapital)
			fmt.Fprintf(out, "  Source:   %s\n", cfg.Replay.Source)
			fmt.Fprintf(out, "  Breakers: daily %.1f%% weekly %.1f%% drawdown %.1f%%\n",
				100*cfg.Risk.DailyLossPct, 100*cfg.Risk.WeeklyLossPct, 100*cfg.Risk.MaxDrawdownPct)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&file, "file", "f", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("file")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
