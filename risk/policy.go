package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/capwatch/account"
)

// Policy decides whether a snapshot breaches a risk limit.
type Policy interface {
	Name() string
	Check(account.Snapshot) (message string, breached bool)
}

// DrawdownPolicy breaches once the peak-to-trough drawdown reaches Max.
// Max is a fraction, 0.1 meaning ten percent.
type DrawdownPolicy struct {
	Max decimal.Decimal
}

func (p DrawdownPolicy) Name() string { return "drawdown" }

func (p DrawdownPolicy) Check(s account.Snapshot) (string, bool) {
	if s.Drawdown.GreaterThanOrEqual(p.Max) {
		return fmt.Sprintf("Drawdown triggered: %s >= %s", s.Drawdown, p.Max), true
	}
	return "", false
}

// AbsoluteStopLossPolicy breaches once the loss in quote currency reaches
// StopLoss. Gains never trigger it.
type AbsoluteStopLossPolicy struct {
	StopLoss decimal.Decimal
}

func (p AbsoluteStopLossPolicy) Name() string { return "abs_stop_loss" }

func (p AbsoluteStopLossPolicy) Check(s account.Snapshot) (string, bool) {
	if s.Return.IsNegative() && s.Return.Abs().GreaterThanOrEqual(p.StopLoss) {
		return fmt.Sprintf("Stop loss triggered: %s >= %s", s.Return.Abs(), p.StopLoss), true
	}
	return "", false
}

// PercentageStopLossPolicy is AbsoluteStopLossPolicy measured against the
// return fraction. StopLoss is a fraction, 0.05 meaning five percent.
type PercentageStopLossPolicy struct {
	StopLoss decimal.Decimal
}

func (p PercentageStopLossPolicy) Name() string { return "perc_stop_loss" }

func (p PercentageStopLossPolicy) Check(s account.Snapshot) (string, bool) {
	if s.ReturnPerc.IsNegative() && s.ReturnPerc.Abs().GreaterThanOrEqual(p.StopLoss) {
		return fmt.Sprintf("Stop loss percentage triggered: %s >= %s", s.ReturnPerc.Abs(), p.StopLoss), true
	}
	return "", false
}
