package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/capwatch/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage capwatch configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  capwatch config init -o capwatch.yaml
  capwatch config validate -f capwatch.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "capwatch.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  capwatch run -f %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	opts := cfg.WatcherOptions()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Allocation: %s (Leverage: %d)\n", money(cfg.Account.Allocation), max(cfg.Account.Leverage, 1))
	fmt.Fprintf(out, "  Watchers: drawdown=%s abs_stop=%s perc_stop=%s exit=%s\n",
		threshold(opts.MaxDrawdown, "%"), threshold(opts.AbsStopLoss, ""), threshold(opts.PercStopLoss, "%"), opts.ExitPositionMode)
	fmt.Fprintf(out, "  Journal: %s\n", journalType(cfg))
	fmt.Fprintf(out, "  Steps: %d\n", len(cfg.Simulation.Steps))
	return nil
}

func journalType(cfg *config.Config) string {
	if cfg.Journal.Type == "" {
		return "none"
	}
	return cfg.Journal.Type
}
