package account

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrder    = errors.New("invalid order")
	ErrOrderTooSmall   = errors.New("order below minimum size")
	ErrMaxPositionSize = errors.New("order exceeds max position size")
	ErrClosed          = errors.New("engine closed")
)

// ConfigurationError is returned by New when the engine cannot be built.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// InsufficientFundError rejects a fill whose notional exceeds the remaining
// capacity by more than the slippage epsilon. Both balances are notional,
// in quote currency. The engine state is left untouched.
type InsufficientFundError struct {
	Side             string
	AvailableBalance decimal.Decimal
	RequiredBalance  decimal.Decimal
}

func (e *InsufficientFundError) Error() string {
	return fmt.Sprintf("insufficient funds: invalid %s amount, trying to use %s of %s",
		e.Side, e.RequiredBalance, e.AvailableBalance)
}

// LiquidationError reports that margin capacity no longer supports the open
// position at Price.
type LiquidationError struct {
	Price          decimal.Decimal
	PositionSize   decimal.Decimal
	MarginCapacity decimal.Decimal
}

func (e *LiquidationError) Error() string {
	return fmt.Sprintf("account liquidated: margin %s cannot carry position %s at price %s",
		e.MarginCapacity, e.PositionSize, e.Price)
}

// JournalError reports that a fill or tick was applied to the engine but
// could not be journaled. The state change is not rolled back, so callers
// must not retry the fill.
type JournalError struct {
	Op  string // "fill" or "equity"
	ID  string
	Err error
}

func (e *JournalError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("record %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("record %s: %v", e.Op, e.Err)
}

func (e *JournalError) Unwrap() error { return e.Err }

// Applied reports whether err only carries *LiquidationError and
// *JournalError values, joined or wrapped. Both leave the engine state
// updated, so the caller can log them and keep going.
func Applied(err error) bool {
	if err == nil {
		return true
	}
	switch e := err.(type) {
	case *LiquidationError, *JournalError:
		return true
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if !Applied(inner) {
				return false
			}
		}
		return true
	case interface{ Unwrap() error }:
		inner := e.Unwrap()
		return inner != nil && Applied(inner)
	}
	return false
}
