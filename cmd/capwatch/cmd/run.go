package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/capwatch/account"
	"github.com/rustyeddy/capwatch/config"
	"github.com/rustyeddy/capwatch/market"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scripted simulation from a config file",
	Long: `Run a simulation using settings from a configuration file.

The config file specifies the account, the risk watchers, the journal and the
price steps to push through the engine. A step may book a fill right after
its price. The run stops early when a watcher aborts or the account is
liquidated.

Example:
  capwatch run -f capwatch.yaml --metrics-addr :9100`,
	RunE: runRun,
}

var (
	runConfigPath  string
	runMetricsAddr string
	runNoDelay     bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve /metrics and /snapshot on this address")
	runCmd.Flags().BoolVar(&runNoDelay, "no-delay", false, "ignore step delays")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyLogLevel(cfg.Log.Level); err != nil {
		return err
	}

	s, err := newSession(ctxOrBackground(cmd.Context()), cfg, runMetricsAddr)
	if err != nil {
		return err
	}
	defer s.close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running simulation with config: %s\n", runConfigPath)
	fmt.Fprintf(out, "  Allocation: %s (Leverage: %dx)\n", money(cfg.Account.Allocation), s.engine.Leverage())
	fmt.Fprintf(out, "  Steps: %d\n\n", len(cfg.Simulation.Steps))

	if err := runSteps(s, cfg.Simulation.Steps, time.Now().UTC(), !runNoDelay); err != nil {
		return err
	}
	if err := s.finish(); err != nil {
		return err
	}
	s.summary(out)
	return nil
}

// runSteps pushes each step on a simulated clock that starts at start and
// advances by the step delays. With wait set, it also sleeps for them.
func runSteps(s *session, steps []config.PriceStep, start time.Time, wait bool) error {
	now := start
	for i, step := range steps {
		delay, err := step.ParseDuration()
		if err != nil {
			return fmt.Errorf("invalid delay in step %d: %w", i, err)
		}
		if wait && delay > 0 {
			select {
			case <-s.ctx.Done():
			case <-time.After(delay):
			}
		}
		if s.ctx.Err() != nil {
			s.log.WithField("remaining", len(steps)-i).Info("run stopped, skipping remaining steps")
			return nil
		}
		now = now.Add(delay)

		s.log.WithFields(logrus.Fields{"step": i, "price": step.Price.String()}).Debug("push price")
		err = s.feed.Push(market.Tick{Time: now, Price: step.Price})
		if !account.Applied(err) {
			return fmt.Errorf("step %d: %w", i, err)
		}
		var jerr *account.JournalError
		if errors.As(err, &jerr) {
			s.log.WithField("step", i).WithError(jerr).Error("tick applied but not journaled")
		}

		if step.Fill == nil || s.ctx.Err() != nil {
			continue
		}
		price := step.FillPrice()
		err = s.engine.AddOrder(step.Fill.Amount, price)
		var ferr *account.InsufficientFundError
		if errors.As(err, &ferr) {
			s.log.WithField("step", i).Warn(ferr.Error())
			continue
		}
		if errors.As(err, &jerr) {
			s.log.WithField("step", i).WithError(jerr).Error("fill booked but not journaled")
			continue
		}
		if err != nil {
			return fmt.Errorf("step %d fill: %w", i, err)
		}
	}
	return nil
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
