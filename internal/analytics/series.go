package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

// BuildSeries computes one record per date in the union of the ticker's
// trade dates and price dates. Trades are validated as a batch first, so a
// single bad trade fails the whole ticker. Observations for other tickers
// are ignored.
func BuildSeries(ticker string, trades []models.Trade, prices []models.PriceObservation) ([]models.PnLRecord, error) {
	own := make([]models.PriceObservation, 0, len(prices))
	for _, p := range prices {
		if p.Ticker == ticker {
			own = append(own, p)
		}
	}
	valuer, err := NewMarketValuer(own)
	if err != nil {
		return nil, err
	}
	return buildSeries(ticker, trades, valuer)
}

// BuildAll groups mixed-ticker input and builds a series for every ticker
// that has trades or prices
func BuildAll(trades []models.Trade, prices []models.PriceObservation) (map[string][]models.PnLRecord, error) {
	valuer, err := NewMarketValuer(prices)
	if err != nil {
		return nil, err
	}

	byTicker := make(map[string][]models.Trade)
	for _, t := range trades {
		byTicker[t.Ticker] = append(byTicker[t.Ticker], t)
	}
	for _, ticker := range valuer.Tickers() {
		if _, ok := byTicker[ticker]; !ok {
			byTicker[ticker] = nil
		}
	}

	out := make(map[string][]models.PnLRecord, len(byTicker))
	for ticker, tt := range byTicker {
		records, err := buildSeries(ticker, tt, valuer)
		if err != nil {
			return nil, err
		}
		out[ticker] = records
	}
	return out, nil
}

// BuildEach builds every ticker independently. A ticker with an invalid
// trade or price lands in the error map and the other tickers are still
// built.
func BuildEach(trades []models.Trade, prices []models.PriceObservation) (map[string][]models.PnLRecord, map[string]error) {
	tradesBy := make(map[string][]models.Trade)
	for _, t := range trades {
		tradesBy[t.Ticker] = append(tradesBy[t.Ticker], t)
	}
	pricesBy := make(map[string][]models.PriceObservation)
	for _, p := range prices {
		pricesBy[p.Ticker] = append(pricesBy[p.Ticker], p)
		if _, ok := tradesBy[p.Ticker]; !ok {
			tradesBy[p.Ticker] = nil
		}
	}

	out := make(map[string][]models.PnLRecord, len(tradesBy))
	failed := make(map[string]error)
	for ticker, tt := range tradesBy {
		records, err := BuildSeries(ticker, tt, pricesBy[ticker])
		if err != nil {
			failed[ticker] = err
			continue
		}
		out[ticker] = records
	}
	return out, failed
}

// Tickers returns the keys of a series map in sorted order
func Tickers(series map[string][]models.PnLRecord) []string {
	out := make([]string, 0, len(series))
	for t := range series {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func buildSeries(ticker string, trades []models.Trade, valuer *MarketValuer) ([]models.PnLRecord, error) {
	for _, t := range trades {
		if err := validateTrade(ticker, t); err != nil {
			return nil, err
		}
	}
	events, err := Process(ticker, SortTrades(trades))
	if err != nil {
		return nil, err
	}
	return mergeSeries(ticker, events, valuer.Cursor(ticker)), nil
}

// mergeSeries walks trade events and price dates together. Both are
// ascending, so each date is visited once and the position and price in
// effect are carried forward between them.
func mergeSeries(ticker string, events []models.PositionEvent, prices *PriceCursor) []models.PnLRecord {
	state := NewPositionTracker(ticker).State()
	var records []models.PnLRecord

	i := 0
	for {
		var date time.Time
		have := false
		if i < len(events) {
			date, have = events[i].Trade.TradeDate, true
		}
		if pd, ok := prices.Peek(); ok && (!have || pd.Before(date)) {
			date, have = pd, true
		}
		if !have {
			break
		}

		// only the end of day state is reported
		for i < len(events) && !events[i].Trade.TradeDate.After(date) {
			state = events[i].State
			i++
		}
		price, ok := prices.AdvanceTo(date)
		records = append(records, newRecord(ticker, date, state, price, ok))
	}
	return records
}

func newRecord(ticker string, date time.Time, state models.PositionState, price decimal.Decimal, priced bool) models.PnLRecord {
	unrealized := decimal.Zero
	exposure := decimal.Zero
	if priced {
		exposure = state.OpenQuantity.Mul(price)
		if !state.OpenQuantity.IsZero() {
			// long: value − cost, short: proceeds − cover cost
			value := state.OpenQuantity.Mul(price)
			if state.OpenQuantity.IsNegative() {
				unrealized = value.Add(state.OpenCost)
			} else {
				unrealized = value.Sub(state.OpenCost)
			}
		}
	}
	return models.PnLRecord{
		Ticker:        ticker,
		AsOfDate:      date,
		NetPosition:   state.OpenQuantity,
		AverageCost:   state.AverageCost,
		MarketPrice:   decimal.NullDecimal{Decimal: price, Valid: priced},
		RealizedPnl:   state.CumulativeRealizedPnl,
		UnrealizedPnl: unrealized,
		TotalPnl:      state.CumulativeRealizedPnl.Add(unrealized),
		NetExposure:   exposure,
	}
}
