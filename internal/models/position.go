package models

import (
	"github.com/shopspring/decimal"
)

// PositionState is the running position for one ticker. It is derived from
// trade history on every computation and never persisted.
type PositionState struct {
	Ticker                string          `json:"ticker"`
	OpenQuantity          decimal.Decimal `json:"open_quantity"`
	AverageCost           decimal.Decimal `json:"average_cost"`
	// OpenCost is |OpenQuantity| × AverageCost kept without rounding
	OpenCost              decimal.Decimal `json:"open_cost"`
	CumulativeRealizedPnl decimal.Decimal `json:"cumulative_realized_pnl"`
}

// IsFlat reports whether no quantity is open
func (p PositionState) IsFlat() bool {
	return p.OpenQuantity.IsZero()
}

// PositionEvent is the position after applying one trade
type PositionEvent struct {
	Trade       Trade           `json:"trade"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
	State       PositionState   `json:"state"`
}
