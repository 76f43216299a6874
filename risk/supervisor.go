package risk

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/capwatch/account"
)

var hundred = decimal.NewFromInt(100)

// AbortFunc is how a run is told to stop.
type AbortFunc func(mode ExitMode, message string)

// Options selects the watchers to run. Nil or zero thresholds are
// disabled. MaxDrawdown and PercStopLoss are percentages (10 = 10%).
type Options struct {
	MaxDrawdown      *decimal.Decimal
	AbsStopLoss      *decimal.Decimal
	PercStopLoss     *decimal.Decimal
	ExitPositionMode ExitMode
	Logger           *logrus.Entry
}

func (o Options) exitMode() ExitMode {
	if o.ExitPositionMode == "" {
		return ExitCloseAtMarket
	}
	return o.ExitPositionMode
}

func enabled(d *decimal.Decimal) bool {
	return d != nil && !d.IsZero()
}

// StartWatchers creates, starts and wires one watcher per enabled
// threshold, in drawdown, absolute, percentage order.
func StartWatchers(src Source, abort AbortFunc, opts Options) []*Watcher {
	var wopts []WatcherOption
	if opts.Logger != nil {
		wopts = append(wopts, WithWatcherLogger(opts.Logger))
	}

	var watchers []*Watcher
	if enabled(opts.MaxDrawdown) {
		watchers = append(watchers, NewDrawdownWatcher(src, opts.MaxDrawdown.Div(hundred), wopts...))
	}
	if enabled(opts.AbsStopLoss) {
		watchers = append(watchers, NewAbsoluteStopLossWatcher(src, *opts.AbsStopLoss, wopts...))
	}
	if enabled(opts.PercStopLoss) {
		watchers = append(watchers, NewPercentageStopLossWatcher(src, opts.PercStopLoss.Div(hundred), wopts...))
	}

	mode := opts.exitMode()
	for _, w := range watchers {
		w.OnAbort(func(sig AbortSignal) {
			if abort != nil {
				abort(mode, sig.Message)
			}
		})
		w.Start()
	}
	return watchers
}

// Supervisor owns the watchers of a run and routes engine liquidation to
// the same abort path.
type Supervisor struct {
	watchers  []*Watcher
	cancelLiq func()
	closed    bool
}

func Supervise(eng *account.Engine, abort AbortFunc, opts Options) *Supervisor {
	s := &Supervisor{
		watchers: StartWatchers(eng, abort, opts),
	}
	s.cancelLiq = eng.SubscribeLiquidation(func(err *account.LiquidationError) {
		if abort != nil {
			abort(ExitLiquidation, err.Error())
		}
	})
	return s
}

func (s *Supervisor) Watchers() []*Watcher {
	return s.watchers
}

func (s *Supervisor) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for _, w := range s.watchers {
		w.Close()
	}
	if s.cancelLiq != nil {
		s.cancelLiq()
	}
}
