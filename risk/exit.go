package risk

import (
	"fmt"
	"strings"
)

// ExitMode tells the runner what to do with the open position after an
// abort.
type ExitMode string

const (
	ExitCloseAtMarket ExitMode = "CLOSE_AT_MARKET"
	ExitLeaveOpen     ExitMode = "LEAVE_OPEN"
	ExitLiquidation   ExitMode = "LIQUIDATION"
)

func (m ExitMode) String() string { return string(m) }

// ParseExitMode accepts the mode names case-insensitively. An empty string
// yields ExitCloseAtMarket.
func ParseExitMode(s string) (ExitMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(ExitCloseAtMarket):
		return ExitCloseAtMarket, nil
	case string(ExitLeaveOpen):
		return ExitLeaveOpen, nil
	case string(ExitLiquidation):
		return ExitLiquidation, nil
	}
	return "", fmt.Errorf("unknown exit mode %q", s)
}
