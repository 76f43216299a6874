// Package account keeps the capital and position books of a single strategy
// run. It nets fills against a FIFO ledger, tracks funds, equity, drawdown
// and margin, and notifies observers after every change.
//
// The engine is not safe for concurrent use. Ticks and fills must be driven
// from one goroutine in temporal order; notifications are delivered
// synchronously on that goroutine.
package account

import (
	"fmt"
	"time"

	"github.com/rustyeddy/capwatch/journal"
	"github.com/rustyeddy/capwatch/market"
	"github.com/rustyeddy/capwatch/pkg/id"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// slippage tolerance as a fraction of the input allocation
var slippageRate = decimal.RequireFromString("0.005")

type subscription struct {
	obs    Observer
	active bool
}

type liquidationSub struct {
	fn     func(*LiquidationError)
	active bool
}

type Engine struct {
	feed    market.PriceFeed
	log     *logrus.Entry
	journal journal.Journal
	runID   string
	now     func() time.Time

	allocation         decimal.Decimal // input allocation × leverage
	initialFunds       decimal.Decimal
	availableFunds     decimal.Decimal
	currentAllocations decimal.Decimal
	leverage           int
	lev                decimal.Decimal
	se                 decimal.Decimal
	maxPositionSize    *decimal.Decimal
	minOrderSize       decimal.Decimal

	peak   decimal.Decimal
	trough decimal.Decimal
	ledger Ledger

	lastTick *market.Tick

	observers    []*subscription
	liquidations []*liquidationSub
	feedCancel   []func()

	liquidated bool
	closed     bool
}

type Option func(*Engine)

func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) { e.log = l }
}

func WithJournal(j journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithRunID tags every journal record written by the engine.
func WithRunID(runID string) Option {
	return func(e *Engine) { e.runID = runID }
}

// WithClock sets the time source used for fills booked before the first tick.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine for one strategy run and attaches it to feed.
// Nothing is subscribed when the configuration is rejected.
func New(feed market.PriceFeed, cfg Config, opts ...Option) (*Engine, error) {
	if feed == nil {
		return nil, &ConfigurationError{Field: "feed", Reason: "a price feed is required"}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	leverage := cfg.Leverage
	if leverage == 0 {
		leverage = 1
	}
	lev := decimal.NewFromInt(int64(leverage))

	e := &Engine{
		feed:               feed,
		log:                logrus.NewEntry(logrus.StandardLogger()),
		journal:            journal.Nop{},
		now:                time.Now,
		allocation:         cfg.Allocation.Mul(lev),
		currentAllocations: cfg.Allocation.Mul(lev),
		initialFunds:       cfg.Allocation,
		availableFunds:     cfg.Allocation,
		leverage:           leverage,
		lev:                lev,
		se:                 cfg.Allocation.Mul(slippageRate),
		maxPositionSize:    cfg.MaxPositionSize,
		minOrderSize:       cfg.ExchangeType.MinOrderSize(),
		peak:               cfg.Allocation,
		trough:             cfg.Allocation,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = id.NewRun()
	}
	e.log = e.log.WithField("run_id", e.runID)

	e.feedCancel = append(e.feedCancel,
		feed.Subscribe(e.onTick),
		feed.Subscribe(e.checkLiquidation),
	)

	e.log.WithFields(logrus.Fields{
		"allocation": cfg.Allocation.String(),
		"leverage":   leverage,
		"epsilon":    e.se.String(),
	}).Debug("accounting engine started")

	return e, nil
}

func (e *Engine) RunID() string { return e.runID }
func (e *Engine) Leverage() int { return e.leverage }
func (e *Engine) SlippageEpsilon() decimal.Decimal { return e.se }
func (e *Engine) MinOrderSize() decimal.Decimal { return e.minOrderSize }
func (e *Engine) MaxPositionSize() *decimal.Decimal { return e.maxPositionSize }
func (e *Engine) InitialFunds() decimal.Decimal { return e.initialFunds }
func (e *Engine) AvailableFunds() decimal.Decimal { return e.availableFunds }
func (e *Engine) Peak() decimal.Decimal { return e.peak }
func (e *Engine) Trough() decimal.Decimal { return e.trough }
func (e *Engine) Liquidated() bool { return e.liquidated }

// Orders returns a copy of the open orders, oldest first.
func (e *Engine) Orders() []Order {
	return e.ledger.Orders()
}

// PositionSize is the signed sum of open amounts.
func (e *Engine) PositionSize() decimal.Decimal {
	return e.ledger.Size()
}

// CurrentAllocation is the open notional marked at fill prices.
func (e *Engine) CurrentAllocation() decimal.Decimal {
	return e.ledger.Notional()
}

// EquityCurve marks the position at the latest feed price. Before the first
// tick it is the available funds.
func (e *Engine) EquityCurve() decimal.Decimal {
	price, ok := e.feed.Price()
	if !ok {
		return e.availableFunds
	}
	return price.Mul(e.PositionSize()).Div(e.lev).Add(e.availableFunds)
}

func (e *Engine) Return() decimal.Decimal {
	return e.EquityCurve().Sub(e.allocation.Div(e.lev))
}

func (e *Engine) ReturnPerc() decimal.Decimal {
	return e.Return().Div(e.allocation.Div(e.lev))
}

// Drawdown is the fractional decline of equity from its peak.
func (e *Engine) Drawdown() decimal.Decimal {
	equity := e.EquityCurve()
	if equity.GreaterThanOrEqual(e.peak) || e.peak.IsZero() {
		return decimal.Zero
	}
	return e.peak.Sub(equity).Div(e.peak)
}

// RealizedPnL is the profit locked in by closed orders, scaled the same way
// as the equity curve.
func (e *Engine) RealizedPnL() decimal.Decimal {
	return e.realizedNotional().Div(e.lev)
}

func (e *Engine) realizedNotional() decimal.Decimal {
	return e.currentAllocations.Add(e.CurrentAllocation()).Sub(e.allocation)
}

// capacity is the notional that can still be added in the current direction.
func (e *Engine) capacity() decimal.Decimal {
	return e.allocation.Add(e.realizedNotional()).Sub(e.CurrentAllocation().Abs())
}

// clock is the time of the last tick, or the wall clock before the first one.
func (e *Engine) clock() time.Time {
	if e.lastTick != nil {
		return e.lastTick.Time
	}
	return e.now()
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Time:              e.clock(),
		PositionSize:      e.PositionSize(),
		CurrentAllocation: e.CurrentAllocation(),
		AvailableFunds:    e.availableFunds,
		EquityCurve:       e.EquityCurve(),
		Return:            e.Return(),
		ReturnPerc:        e.ReturnPerc(),
		Drawdown:          e.Drawdown(),
		Peak:              e.peak,
		Trough:            e.trough,
		RealizedPnL:       e.RealizedPnL(),
	}
	if p, ok := e.feed.Price(); ok {
		s.Price = p
		s.HasPrice = true
	}
	return s
}

// CanOpenOrder reports whether AddOrder would accept the fill, also
// checking the venue minimum and the advisory max position size. It never
// changes state.
func (e *Engine) CanOpenOrder(amount, price decimal.Decimal) error {
	if err := e.validateOrder(amount, price); err != nil {
		return err
	}
	if amount.Mul(price).Abs().LessThan(e.minOrderSize) {
		return fmt.Errorf("notional %s below %s: %w", amount.Mul(price).Abs(), e.minOrderSize, ErrOrderTooSmall)
	}
	if e.maxPositionSize != nil {
		next := e.PositionSize().Add(amount).Abs()
		if next.GreaterThan(*e.maxPositionSize) {
			return fmt.Errorf("position %s above %s: %w", next, *e.maxPositionSize, ErrMaxPositionSize)
		}
	}
	return e.checkFunds(amount, price)
}

func (e *Engine) validateOrder(amount, price decimal.Decimal) error {
	if e.closed {
		return ErrClosed
	}
	if amount.IsZero() {
		return fmt.Errorf("amount is zero: %w", ErrInvalidOrder)
	}
	if !price.IsPositive() {
		return fmt.Errorf("price %s is not positive: %w", price, ErrInvalidOrder)
	}
	return nil
}

// checkFunds rejects a fill that adds more exposure than the remaining
// capacity allows, beyond the slippage epsilon.
func (e *Engine) checkFunds(amount, price decimal.Decimal) error {
	pos := e.PositionSize()
	capacity := e.capacity()

	var required decimal.Decimal
	switch {
	case pos.IsZero() || pos.Sign() == amount.Sign():
		required = amount.Mul(price).Abs()
	case amount.Abs().GreaterThan(pos.Abs()):
		// Closes the whole book at price, then opens the remainder the
		// other way with whatever the close left.
		closePnL := pos.Mul(price).Sub(e.CurrentAllocation())
		capacity = e.allocation.Add(e.realizedNotional()).Add(closePnL)
		required = amount.Add(pos).Mul(price).Abs()
	default:
		return nil
	}

	if required.Sub(capacity).GreaterThan(e.se) {
		side := "long"
		if amount.IsNegative() {
			side = "short"
		}
		return &InsufficientFundError{
			Side:             side,
			AvailableBalance: capacity,
			RequiredBalance:  required,
		}
	}
	return nil
}

// AddOrder books a fill of amount at price. Positive amounts buy, negative
// amounts sell. Fills opposite to the open position close orders FIFO;
// anything left over opens a position in the new direction.
func (e *Engine) AddOrder(amount, price decimal.Decimal) error {
	if err := e.validateOrder(amount, price); err != nil {
		return err
	}
	if err := e.checkFunds(amount, price); err != nil {
		e.log.WithFields(logrus.Fields{
			"amount": amount.String(),
			"price":  price.String(),
		}).WithError(err).Warn("fill rejected")
		return err
	}

	fillID := id.New()
	total := amount.Mul(price)

	e.net(fillID, amount, price)

	e.currentAllocations = e.currentAllocations.Sub(total)
	e.availableFunds = e.initialFunds.Add(e.currentAllocations.Sub(e.allocation).Div(e.lev))

	ts := e.clock()
	e.log.WithFields(logrus.Fields{
		"fill_id":  fillID,
		"amount":   amount.String(),
		"price":    price.String(),
		"position": e.PositionSize().String(),
		"funds":    e.availableFunds.String(),
	}).Debug("fill booked")

	e.selfUpdate()

	err := e.journal.RecordFill(journal.FillRecord{
		RunID:          e.runID,
		FillID:         fillID,
		Time:           ts,
		Amount:         amount,
		Price:          price,
		PositionSize:   e.PositionSize(),
		AvailableFunds: e.availableFunds,
		RealizedPnL:    e.RealizedPnL(),
	})
	if err != nil {
		e.log.WithError(err).Error("journal fill")
		return &JournalError{Op: "fill", ID: fillID, Err: err}
	}
	return nil
}

// net applies a fill to the ledger. Every open order shares one sign, so
// a same-direction fill is appended and an opposite fill consumes orders
// from the head.
func (e *Engine) net(fillID string, amount, price decimal.Decimal) {
	for !amount.IsZero() && e.ledger.Len() > 0 {
		head, _ := e.ledger.PopFront()

		if head.Amount.Sign() == amount.Sign() {
			e.ledger.PushFront(head)
			break
		}

		remainder := head.Amount.Add(amount)
		switch {
		case remainder.IsZero() || remainder.Mul(price).Abs().LessThan(e.se):
			// head fully closed; dust is absorbed
			amount = decimal.Zero
		case remainder.Sign() == head.Amount.Sign():
			head.Amount = remainder
			e.ledger.PushFront(head)
			amount = decimal.Zero
		default:
			amount = remainder
		}
	}

	if !amount.IsZero() {
		e.ledger.PushBack(Order{ID: fillID, Amount: amount, Price: price})
	}
}

func (e *Engine) onTick(t market.Tick) error {
	if e.closed {
		return nil
	}
	e.lastTick = &t
	e.selfUpdate()

	s := e.Snapshot()
	err := e.journal.RecordEquity(journal.EquitySnapshot{
		RunID:          e.runID,
		Time:           t.Time,
		Price:          t.Price,
		Equity:         s.EquityCurve,
		AvailableFunds: s.AvailableFunds,
		PositionSize:   s.PositionSize,
		Drawdown:       s.Drawdown,
		Peak:           s.Peak,
		Trough:         s.Trough,
	})
	if err != nil {
		e.log.WithError(err).Error("journal equity")
		return &JournalError{Op: "equity", Err: err}
	}
	return nil
}

// selfUpdate moves the extrema and notifies observers.
func (e *Engine) selfUpdate() {
	equity := e.EquityCurve()
	if equity.GreaterThan(e.peak) {
		e.peak = equity
	}
	if equity.LessThan(e.trough) || e.trough.IsZero() {
		e.trough = equity
	}

	s := e.Snapshot()
	subs := make([]*subscription, len(e.observers))
	copy(subs, e.observers)
	for _, sub := range subs {
		if sub.active {
			sub.obs.OnUpdate(s)
		}
	}
}

// checkLiquidation compares the margin the account can post against the
// open position at the tick price. It fires at most once per engine.
func (e *Engine) checkLiquidation(t market.Tick) error {
	if e.closed || e.liquidated {
		return nil
	}

	marginCapacity := e.initialFunds.Mul(e.lev.Sub(decimal.NewFromInt(1)))
	pos := e.PositionSize()
	if marginCapacity.IsZero() || pos.IsZero() {
		return nil
	}
	if !marginCapacity.Div(pos.Abs()).LessThan(t.Price) {
		return nil
	}

	e.liquidated = true
	lerr := &LiquidationError{
		Price:          t.Price,
		PositionSize:   pos,
		MarginCapacity: marginCapacity,
	}
	e.log.WithFields(logrus.Fields{
		"price":    t.Price.String(),
		"position": pos.String(),
		"margin":   marginCapacity.String(),
	}).Error("account liquidated")

	subs := make([]*liquidationSub, len(e.liquidations))
	copy(subs, e.liquidations)
	for _, sub := range subs {
		if sub.active {
			sub.fn(lerr)
		}
	}
	return lerr
}

// Subscribe registers o for update notifications. The returned cancel
// function is idempotent.
func (e *Engine) Subscribe(o Observer) (cancel func()) {
	if e.closed {
		return func() {}
	}
	sub := &subscription{obs: o, active: true}
	e.observers = append(e.observers, sub)

	return func() {
		if !sub.active {
			return
		}
		sub.active = false
		for i, s := range e.observers {
			if s == sub {
				e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
				break
			}
		}
	}
}

// SubscribeLiquidation registers fn to receive the liquidation error.
func (e *Engine) SubscribeLiquidation(fn func(*LiquidationError)) (cancel func()) {
	if e.closed {
		return func() {}
	}
	sub := &liquidationSub{fn: fn, active: true}
	e.liquidations = append(e.liquidations, sub)

	return func() {
		if !sub.active {
			return
		}
		sub.active = false
		for i, s := range e.liquidations {
			if s == sub {
				e.liquidations = append(e.liquidations[:i:i], e.liquidations[i+1:]...)
				break
			}
		}
	}
}

// Observers returns the number of active update subscriptions.
func (e *Engine) Observers() int {
	return len(e.observers)
}

// Close detaches the engine from its feed and drops every subscriber.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	for _, cancel := range e.feedCancel {
		cancel()
	}
	e.feedCancel = nil
	for _, s := range e.observers {
		s.active = false
	}
	for _, s := range e.liquidations {
		s.active = false
	}
	e.observers = nil
	e.liquidations = nil
	e.log.Debug("accounting engine closed")
}
