// Package analytics derives position, realized and unrealized PnL series
// from trade and price history. Every function is pure: inputs are never
// modified and nothing is retained between calls.
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

// PositionTracker runs the weighted average cost model over one ticker's
// trades. It belongs to a single computation and is not safe for
// concurrent use.
type PositionTracker struct {
	state   models.PositionState
	last    models.Trade
	applied int
}

// NewPositionTracker starts a flat position for ticker
func NewPositionTracker(ticker string) *PositionTracker {
	return &PositionTracker{
		state: models.PositionState{
			Ticker:                ticker,
			OpenQuantity:          decimal.Zero,
			AverageCost:           decimal.Zero,
			OpenCost:              decimal.Zero,
			CumulativeRealizedPnl: decimal.Zero,
		},
	}
}

// State returns the position after the last applied trade
func (pt *PositionTracker) State() models.PositionState {
	return pt.state
}

// Apply folds one trade into the position. Trades must arrive in
// (trade_date, sequence_id) order.
func (pt *PositionTracker) Apply(t models.Trade) (models.PositionEvent, error) {
	if err := validateTrade(pt.state.Ticker, t); err != nil {
		return models.PositionEvent{}, err
	}
	if pt.applied > 0 && !tradeLess(pt.last, t) {
		return models.PositionEvent{}, &OrderingError{
			Ticker:   pt.state.Ticker,
			Index:    pt.applied,
			Previous: pt.last,
			Current:  t,
		}
	}

	realized := decimal.Zero
	signed := t.SignedQuantity()
	open := pt.state.OpenQuantity

	if open.IsZero() || open.Sign() == signed.Sign() {
		pt.state.OpenQuantity = open.Add(signed)
		pt.state.OpenCost = pt.state.OpenCost.Add(t.Quantity.Mul(t.Price))
	} else {
		closing := decimal.Min(t.Quantity, open.Abs())

		// a full close releases the whole cost so nothing is lost to rounding
		released := pt.state.OpenCost
		if closing.LessThan(open.Abs()) {
			released = pt.state.OpenCost.Mul(closing).Div(open.Abs())
		}
		realized = closing.Mul(t.Price).Sub(released)
		if open.IsNegative() {
			realized = realized.Neg()
		}
		pt.state.CumulativeRealizedPnl = pt.state.CumulativeRealizedPnl.Add(realized)
		pt.state.OpenCost = pt.state.OpenCost.Sub(released)

		remainder := t.Quantity.Sub(closing)
		if remainder.IsZero() {
			pt.state.OpenQuantity = open.Add(signed)
		} else {
			// flip: the remainder opens a new position at the trade price
			pt.state.OpenCost = remainder.Mul(t.Price)
			if signed.IsNegative() {
				remainder = remainder.Neg()
			}
			pt.state.OpenQuantity = remainder
		}
	}

	if pt.state.OpenQuantity.IsZero() {
		pt.state.AverageCost = decimal.Zero
		pt.state.OpenCost = decimal.Zero
	} else {
		pt.state.AverageCost = pt.state.OpenCost.Div(pt.state.OpenQuantity.Abs())
	}

	pt.last = t
	pt.applied++

	return models.PositionEvent{
		Trade:       t,
		RealizedPnl: realized,
		State:       pt.state,
	}, nil
}

// Process runs a fresh tracker over trades and returns the position after
// each one. It fails with *OrderingError when trades are not sorted by
// (trade_date, sequence_id) or a key repeats, and with *InvalidTradeError
// on the first invalid trade.
func Process(ticker string, trades []models.Trade) ([]models.PositionEvent, error) {
	pt := NewPositionTracker(ticker)
	events := make([]models.PositionEvent, 0, len(trades))
	for _, t := range trades {
		ev, err := pt.Apply(t)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// SortTrades returns a copy of trades ordered by (trade_date, sequence_id).
// Trade dates are normalized to midnight UTC.
func SortTrades(trades []models.Trade) []models.Trade {
	sorted := make([]models.Trade, len(trades))
	for i, t := range trades {
		t.TradeDate = models.NormalizeDate(t.TradeDate)
		sorted[i] = t
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return tradeLess(sorted[i], sorted[j])
	})
	return sorted
}

func tradeLess(a, b models.Trade) bool {
	ad, bd := models.NormalizeDate(a.TradeDate), models.NormalizeDate(b.TradeDate)
	if !ad.Equal(bd) {
		return ad.Before(bd)
	}
	return a.SequenceID < b.SequenceID
}

// ValidateTrade applies the checks the tracker makes before accepting a
// trade: a ticker, a known side and a positive quantity and price.
func ValidateTrade(t models.Trade) error {
	if t.Ticker == "" {
		return &InvalidTradeError{Trade: t, Reason: "ticker is required"}
	}
	return validateTrade(t.Ticker, t)
}

func validateTrade(ticker string, t models.Trade) error {
	switch {
	case t.Ticker != ticker:
		return &InvalidTradeError{Trade: t, Reason: "ticker does not match " + ticker}
	case !t.Side.Valid():
		return &InvalidTradeError{Trade: t, Reason: "side must be BUY or SELL"}
	case !t.Quantity.IsPositive():
		return &InvalidTradeError{Trade: t, Reason: "quantity must be positive"}
	case !t.Price.IsPositive():
		return &InvalidTradeError{Trade: t, Reason: "price must be positive"}
	}
	return nil
}
