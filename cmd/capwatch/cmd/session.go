package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/capwatch/account"
	"github.com/rustyeddy/capwatch/config"
	"github.com/rustyeddy/capwatch/journal"
	"github.com/rustyeddy/capwatch/market"
	"github.com/rustyeddy/capwatch/metrics"
	"github.com/rustyeddy/capwatch/pkg/id"
	"github.com/rustyeddy/capwatch/risk"
)

type abortEvent struct {
	mode    risk.ExitMode
	message string
	at      time.Time
}

// session wires one run: journal, feed, engine, watchers and metrics. Aborts
// are recorded during delivery and acted on by finish, after the feed push
// that raised them has returned.
type session struct {
	runID     string
	cfg       *config.Config
	log       *logrus.Entry
	journal   journal.Journal
	feed      *market.Feed
	engine    *account.Engine
	sup       *risk.Supervisor
	collector *metrics.Collector
	server    *metrics.Server

	cancelMetrics func()

	ctx    context.Context
	cancel context.CancelFunc
	abort  *abortEvent
}

func newSession(parent context.Context, cfg *config.Config, metricsAddr string) (*session, error) {
	s := &session{
		runID: id.NewRun(),
		cfg:   cfg,
		feed:  market.NewFeed(),
	}
	s.log = logrus.NewEntry(logger).WithField("run_id", s.runID)
	s.ctx, s.cancel = context.WithCancel(parent)

	j, err := cfg.OpenJournal()
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("create journal: %w", err)
	}
	s.journal = j

	s.engine, err = account.New(s.feed, cfg.EngineConfig(),
		account.WithLogger(s.log),
		account.WithJournal(j),
		account.WithRunID(s.runID),
	)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	reg := prometheus.NewRegistry()
	s.collector, err = metrics.NewCollector(reg)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("metrics: %w", err)
	}
	s.cancelMetrics = s.engine.Subscribe(s.collector)

	opts := cfg.WatcherOptions()
	opts.Logger = s.log
	s.sup = risk.Supervise(s.engine, s.onAbort, opts)

	if metricsAddr != "" {
		s.server = metrics.NewServer(metricsAddr, reg, s.collector, s.log)
		if _, err := s.server.Start(); err != nil {
			s.close()
			return nil, fmt.Errorf("metrics server: %w", err)
		}
	}
	return s, nil
}

// onAbort records the first abort of the run. A liquidation replaces an
// earlier watcher abort so the position is always closed after it.
func (s *session) onAbort(mode risk.ExitMode, message string) {
	if s.abort != nil && (mode != risk.ExitLiquidation || s.abort.mode == risk.ExitLiquidation) {
		return
	}
	at := time.Now()
	if t, ok := s.feed.Last(); ok {
		at = t.Time
	}
	s.abort = &abortEvent{mode: mode, message: message, at: at}
	s.log.WithField("mode", mode).Warn("run aborted: " + message)

	s.collector.RecordAbort(mode.String())
	err := s.journal.RecordAbort(journal.AbortRecord{
		RunID:    s.runID,
		Time:     at,
		ExitMode: mode.String(),
		Message:  message,
	})
	if err != nil {
		s.log.WithError(err).Error("journal abort")
	}
	s.cancel()
}

// finish applies the exit mode of a pending abort. CLOSE_AT_MARKET and
// LIQUIDATION flatten the position at the last price.
func (s *session) finish() error {
	if s.abort == nil || s.abort.mode == risk.ExitLeaveOpen {
		return nil
	}
	if err := closeAtMarket(s); err != nil {
		return fmt.Errorf("exit position: %w", err)
	}
	return nil
}

// closeAtMarket flattens the open position at the last feed price.
func closeAtMarket(s *session) error {
	pos := s.engine.PositionSize()
	price, ok := s.feed.Price()
	if pos.IsZero() || !ok {
		return nil
	}
	err := s.engine.AddOrder(pos.Neg(), price)
	var jerr *account.JournalError
	if errors.As(err, &jerr) {
		s.log.WithError(jerr).Error("close booked but not journaled")
	} else if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"amount": pos.Neg().String(),
		"price":  price.String(),
	}).Info("position closed at market")
	return nil
}

func (s *session) close() {
	if s.sup != nil {
		s.sup.Close()
	}
	if s.cancelMetrics != nil {
		s.cancelMetrics()
	}
	if s.engine != nil {
		s.engine.Close()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.server.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("metrics shutdown")
		}
		cancel()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.log.WithError(err).Warn("journal close")
		}
	}
	s.cancel()
}

func (s *session) summary(w io.Writer) {
	snap := s.engine.Snapshot()
	fmt.Fprintf(w, "\nRun %s\n", s.runID)
	if s.abort != nil {
		fmt.Fprintf(w, "  Aborted: %s (%s)\n", s.abort.message, s.abort.mode)
	}
	fmt.Fprintf(w, "  Position: %s\n", snap.PositionSize)
	fmt.Fprintf(w, "  Available Funds: %s\n", money(snap.AvailableFunds))
	fmt.Fprintf(w, "  Equity: %s\n", money(snap.EquityCurve))
	fmt.Fprintf(w, "  Return: %s (%s%%)\n", money(snap.Return), snap.ReturnPerc.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(w, "  Realized P/L: %s\n", money(snap.RealizedPnL))
	fmt.Fprintf(w, "  Peak/Trough: %s / %s\n", money(snap.Peak), money(snap.Trough))
	if s.engine.Liquidated() {
		fmt.Fprintln(w, "  Liquidated: yes")
	}
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func threshold(d *decimal.Decimal, suffix string) string {
	if d == nil || d.IsZero() {
		return "off"
	}
	return d.String() + suffix
}
