package risk

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/capwatch/account"
)

// Source publishes account snapshots. *account.Engine satisfies it.
type Source interface {
	Subscribe(account.Observer) (cancel func())
}

type State int

const (
	Idle State = iota
	Watching
	Aborted
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Watching:
		return "watching"
	case Aborted:
		return "aborted"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// AbortSignal is delivered once when a watcher's policy is breached.
type AbortSignal struct {
	Watcher string
	Message string
}

type WatcherOption func(*Watcher)

func WithWatcherLogger(l *logrus.Entry) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// Watcher observes a Source and raises a single abort when its policy is
// breached. Aborted and Closed are terminal: a watcher never resubscribes.
type Watcher struct {
	src      Source
	policy   Policy
	state    State
	cancel   func()
	handlers []func(AbortSignal)
	log      *logrus.Entry
}

func NewWatcher(src Source, p Policy, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		src:    src,
		policy: p,
		log:    logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(w)
	}
	w.log = w.log.WithField("watcher", p.Name())
	return w
}

// NewDrawdownWatcher aborts when drawdown reaches limit (a fraction).
func NewDrawdownWatcher(src Source, limit decimal.Decimal, opts ...WatcherOption) *Watcher {
	return NewWatcher(src, DrawdownPolicy{Max: limit}, opts...)
}

// NewAbsoluteStopLossWatcher aborts when the loss reaches stop.
func NewAbsoluteStopLossWatcher(src Source, stop decimal.Decimal, opts ...WatcherOption) *Watcher {
	return NewWatcher(src, AbsoluteStopLossPolicy{StopLoss: stop}, opts...)
}

// NewPercentageStopLossWatcher aborts when the loss fraction reaches stop.
func NewPercentageStopLossWatcher(src Source, stop decimal.Decimal, opts ...WatcherOption) *Watcher {
	return NewWatcher(src, PercentageStopLossPolicy{StopLoss: stop}, opts...)
}

func (w *Watcher) Name() string { return w.policy.Name() }
func (w *Watcher) State() State { return w.state }

// OnAbort registers fn to receive the abort signal. Handlers added after
// the watcher has aborted or closed are ignored.
func (w *Watcher) OnAbort(fn func(AbortSignal)) {
	if w.state == Aborted || w.state == Closed {
		return
	}
	w.handlers = append(w.handlers, fn)
}

// Start subscribes the watcher to its source. Only an idle watcher starts.
func (w *Watcher) Start() {
	if w.state != Idle {
		return
	}
	w.state = Watching
	w.cancel = w.src.Subscribe(account.ObserverFunc(w.onUpdate))
	w.log.Debug("watcher started")
}

func (w *Watcher) onUpdate(s account.Snapshot) {
	if w.state != Watching {
		return
	}
	msg, breached := w.policy.Check(s)
	if !breached {
		return
	}

	w.state = Aborted
	w.unsubscribe()
	w.log.WithFields(logrus.Fields{
		"equity":   s.EquityCurve.String(),
		"drawdown": s.Drawdown.String(),
		"return":   s.Return.String(),
	}).Warn(msg)

	sig := AbortSignal{Watcher: w.policy.Name(), Message: msg}
	handlers := w.handlers
	w.handlers = nil
	for _, h := range handlers {
		h(sig)
	}
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() {
	if w.state != Aborted {
		w.state = Closed
	}
	w.unsubscribe()
	w.handlers = nil
}

func (w *Watcher) unsubscribe() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}
