package account

import (
	"strings"

	"github.com/shopspring/decimal"
)

type ExchangeType string

const (
	CEX ExchangeType = "CEX"
	DEX ExchangeType = "DEX"
)

// MinOrderSize is the smallest notional, in quote currency, worth sending
// to a venue of this type.
func (t ExchangeType) MinOrderSize() decimal.Decimal {
	if t == "" || strings.EqualFold(string(t), string(CEX)) {
		return decimal.NewFromInt(10)
	}
	return decimal.NewFromInt(1)
}

type Config struct {
	// Allocation is the capital assigned to the run. Required.
	Allocation decimal.Decimal
	// Leverage multiplies notional capacity. Zero means 1.
	Leverage int
	// MaxPositionSize is advisory; only CanOpenOrder consults it.
	MaxPositionSize *decimal.Decimal
	ExchangeType    ExchangeType
}

func (c Config) validate() error {
	if c.Allocation.IsZero() {
		return &ConfigurationError{Field: "allocation", Reason: "capital allocation is mandatory"}
	}
	if c.Allocation.IsNegative() {
		return &ConfigurationError{Field: "allocation", Reason: "must be positive"}
	}
	if c.Leverage < 0 {
		return &ConfigurationError{Field: "leverage", Reason: "must be at least 1"}
	}
	if c.MaxPositionSize != nil && !c.MaxPositionSize.IsPositive() {
		return &ConfigurationError{Field: "max_position_size", Reason: "must be positive"}
	}
	return nil
}
