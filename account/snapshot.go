package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a read-only view of the engine after a state change.
type Snapshot struct {
	Time              time.Time       `json:"time"`
	Price             decimal.Decimal `json:"price"`
	HasPrice          bool            `json:"has_price"`
	PositionSize      decimal.Decimal `json:"position_size"`
	CurrentAllocation decimal.Decimal `json:"current_allocation"`
	AvailableFunds    decimal.Decimal `json:"available_funds"`
	EquityCurve       decimal.Decimal `json:"equity"`
	Return            decimal.Decimal `json:"return"`
	ReturnPerc        decimal.Decimal `json:"return_perc"`
	Drawdown          decimal.Decimal `json:"drawdown"`
	Peak              decimal.Decimal `json:"peak"`
	Trough            decimal.Decimal `json:"trough"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
}

// Observer receives a snapshot after every fill and every tick.
type Observer interface {
	OnUpdate(Snapshot)
}

type ObserverFunc func(Snapshot)

func (f ObserverFunc) OnUpdate(s Snapshot) { f(s) }
