package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is a single price observation.
type Tick struct {
	Time  time.Time
	Price decimal.Decimal
}

// TickHandler is called for every tick pushed through a feed.
type TickHandler func(Tick) error

// PriceFeed is the contract the accounting engine consumes. Price reports
// false until the first tick has been observed.
type PriceFeed interface {
	Price() (decimal.Decimal, bool)
	Subscribe(h TickHandler) (cancel func())
}
