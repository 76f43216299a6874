package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const logLevelEnv = "CAPWATCH_LOG_LEVEL"

var rootCmd = &cobra.Command{
	Use:   "capwatch",
	Short: "Capital accounting and risk watchers for automated strategies",
	Long: `Capwatch tracks the capital of a trading run from a stream of prices and fills.

It provides tools for:
  - FIFO position netting with leveraged funds accounting
  - Equity, return, drawdown and liquidation tracking
  - Drawdown and stop loss watchers that abort a run
  - Scripted simulations and CSV tick replay
  - CSV and SQLite journals, Prometheus metrics`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

var (
	logger       = logrus.New()
	logLevelFlag string
	envFile      string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (overrides $"+logLevelEnv+" and log.level)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before running")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return applyLogLevel("")
}

// applyLogLevel picks the flag, then the environment, then fallback.
func applyLogLevel(fallback string) error {
	level := logLevelFlag
	if level == "" {
		level = os.Getenv(logLevelEnv)
	}
	if level == "" {
		level = fallback
	}
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	return nil
}
