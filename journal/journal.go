// Package journal persists the accounting history of a strategy run:
// every booked fill, every equity snapshot and every abort.
package journal

import (
	"time"

	"github.com/shopspring/decimal"
)

// FillRecord is written after a fill has been netted into the ledger.
type FillRecord struct {
	RunID          string          `csv:"run_id"`
	FillID         string          `csv:"fill_id"`
	Time           time.Time       `csv:"time"`
	Amount         decimal.Decimal `csv:"amount"`
	Price          decimal.Decimal `csv:"price"`
	PositionSize   decimal.Decimal `csv:"position_size"`
	AvailableFunds decimal.Decimal `csv:"available_funds"`
	RealizedPnL    decimal.Decimal `csv:"realized_pnl"`
}

// EquitySnapshot is written on every price tick.
type EquitySnapshot struct {
	RunID          string          `csv:"run_id"`
	Time           time.Time       `csv:"time"`
	Price          decimal.Decimal `csv:"price"`
	Equity         decimal.Decimal `csv:"equity"`
	AvailableFunds decimal.Decimal `csv:"available_funds"`
	PositionSize   decimal.Decimal `csv:"position_size"`
	Drawdown       decimal.Decimal `csv:"drawdown"`
	Peak           decimal.Decimal `csv:"peak"`
	Trough         decimal.Decimal `csv:"trough"`
}

// AbortRecord is written when a watcher or the liquidation check stops the run.
type AbortRecord struct {
	RunID    string    `csv:"run_id"`
	Time     time.Time `csv:"time"`
	ExitMode string    `csv:"exit_mode"`
	Message  string    `csv:"message"`
}

type Journal interface {
	RecordFill(FillRecord) error
	RecordEquity(EquitySnapshot) error
	RecordAbort(AbortRecord) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordFill(FillRecord) error { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) RecordAbort(AbortRecord) error { return nil }
func (Nop) Close() error { return nil }
