package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

// priceSeries holds one ticker's closes with distinct ascending dates
type priceSeries struct {
	dates  []time.Time
	prices []decimal.Decimal
}

// MarketValuer resolves the market price of a ticker on a date from its
// daily closes
type MarketValuer struct {
	series map[string]*priceSeries
}

// NewMarketValuer indexes observations by ticker. A repeated
// (ticker, date) keeps the observation seen last.
func NewMarketValuer(observations []models.PriceObservation) (*MarketValuer, error) {
	byTicker := make(map[string]map[time.Time]decimal.Decimal)
	for _, o := range observations {
		d := models.NormalizeDate(o.Date)
		if !o.ClosePrice.IsPositive() {
			return nil, &InvalidPriceError{Ticker: o.Ticker, Date: d, Reason: "close price must be positive"}
		}
		m, ok := byTicker[o.Ticker]
		if !ok {
			m = make(map[time.Time]decimal.Decimal)
			byTicker[o.Ticker] = m
		}
		m[d] = o.ClosePrice
	}

	v := &MarketValuer{series: make(map[string]*priceSeries, len(byTicker))}
	for ticker, m := range byTicker {
		s := &priceSeries{dates: make([]time.Time, 0, len(m))}
		for d := range m {
			s.dates = append(s.dates, d)
		}
		sort.Slice(s.dates, func(i, j int) bool { return s.dates[i].Before(s.dates[j]) })
		s.prices = make([]decimal.Decimal, len(s.dates))
		for i, d := range s.dates {
			s.prices[i] = m[d]
		}
		v.series[ticker] = s
	}
	return v, nil
}

// PriceOn returns the close on date, or the latest close before it. The
// second result is false when the ticker has no observation on or before
// date.
func (v *MarketValuer) PriceOn(ticker string, date time.Time) (decimal.Decimal, bool) {
	s, ok := v.series[ticker]
	if !ok {
		return decimal.Zero, false
	}
	d := models.NormalizeDate(date)
	// first index strictly after d
	i := sort.Search(len(s.dates), func(i int) bool { return s.dates[i].After(d) })
	if i == 0 {
		return decimal.Zero, false
	}
	return s.prices[i-1], true
}

// Dates returns the distinct observation dates of ticker in ascending order
func (v *MarketValuer) Dates(ticker string) []time.Time {
	s, ok := v.series[ticker]
	if !ok {
		return nil
	}
	out := make([]time.Time, len(s.dates))
	copy(out, s.dates)
	return out
}

// Tickers returns the tickers with at least one observation, sorted
func (v *MarketValuer) Tickers() []string {
	out := make([]string, 0, len(v.series))
	for t := range v.series {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Cursor walks one ticker's closes forward in date order
func (v *MarketValuer) Cursor(ticker string) *PriceCursor {
	s := v.series[ticker]
	if s == nil {
		s = &priceSeries{}
	}
	return &PriceCursor{series: s}
}

// PriceCursor resolves prices for non-decreasing dates in amortized
// constant time. It gives the same answers as MarketValuer.PriceOn.
type PriceCursor struct {
	series *priceSeries
	next   int
}

// AdvanceTo moves the cursor to date and returns the price in effect.
// Dates passed to successive calls must not decrease.
func (c *PriceCursor) AdvanceTo(date time.Time) (decimal.Decimal, bool) {
	for c.next < len(c.series.dates) && !c.series.dates[c.next].After(date) {
		c.next++
	}
	if c.next == 0 {
		return decimal.Zero, false
	}
	return c.series.prices[c.next-1], true
}

// Peek returns the next observation date not yet consumed
func (c *PriceCursor) Peek() (time.Time, bool) {
	if c.next >= len(c.series.dates) {
		return time.Time{}, false
	}
	return c.series.dates[c.next], true
}
