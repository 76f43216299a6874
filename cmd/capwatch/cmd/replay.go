package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/capwatch/config"
	"github.com/rustyeddy/capwatch/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay historical tick data from CSV",
	Long: `Replay tick data from a CSV file through the accounting engine.

Rows are time,price with optional event columns (FILL amount [price], CLOSE).
The account, watchers and journal come from the config file; without one a
1000 allocation with no journal is used.

Examples:
  capwatch replay --csv data/ticks.csv
  capwatch replay --csv data/ticks.csv -f capwatch.yaml --skip-rejected`,
	RunE: runReplay,
}

var (
	replayConfigPath  string
	replayTicksPath   string
	replayMetricsAddr string
	replayEventFirst  bool
	replaySkip        bool
	replayCloseEnd    bool
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayConfigPath, "config", "f", "", "path to config file")
	replayCmd.Flags().StringVarP(&replayTicksPath, "csv", "t", "", "CSV file of ticks (time,price[,event,arg1,arg2]) (required)")
	replayCmd.Flags().StringVar(&replayMetricsAddr, "metrics-addr", "", "serve /metrics and /snapshot on this address")
	replayCmd.Flags().BoolVar(&replayEventFirst, "event-first", false, "apply a row's event before its tick")
	replayCmd.Flags().BoolVar(&replaySkip, "skip-rejected", false, "log and skip fills rejected for lack of funds")
	replayCmd.Flags().BoolVar(&replayCloseEnd, "close-end", false, "close the open position at the last price")
	replayCmd.MarkFlagRequired("csv")
}

func replayConfig() (*config.Config, error) {
	if replayConfigPath != "" {
		return config.LoadFromFile(replayConfigPath)
	}
	return &config.Config{
		Account: config.AccountConfig{Allocation: decimal.NewFromInt(1000)},
		Journal: config.JournalConfig{Type: "none"},
	}, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := replayConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyLogLevel(cfg.Log.Level); err != nil {
		return err
	}

	s, err := newSession(ctxOrBackground(cmd.Context()), cfg, replayMetricsAddr)
	if err != nil {
		return err
	}
	defer s.close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Replaying ticks from: %s\n", replayTicksPath)

	stats, err := replay.CSV(s.ctx, replayTicksPath, s.feed, s.engine, replay.Options{
		TickThenEvent: !replayEventFirst,
		SkipRejected:  replaySkip,
		Logger:        s.log,
	})
	if err != nil && !(errors.Is(err, context.Canceled) && s.abort != nil) {
		return fmt.Errorf("replay error: %w", err)
	}
	fmt.Fprintf(out, "  Ticks: %d  Fills: %d  Rejected: %d\n", stats.Ticks, stats.Fills, stats.Rejected)

	if err := s.finish(); err != nil {
		return err
	}
	if replayCloseEnd && s.abort == nil {
		if err := closeAtMarket(s); err != nil {
			return fmt.Errorf("close at end: %w", err)
		}
	}
	s.summary(out)
	return nil
}
