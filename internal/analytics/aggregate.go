package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

// Aggregate sums per-ticker series into a PORTFOLIO series over the union of
// their dates. Each ticker contributes its last record on or before the
// date, and nothing before its first record. Quantities of different
// tickers do not add up, so net position and average cost stay zero.
func Aggregate(series map[string][]models.PnLRecord) []models.PnLRecord {
	tickers := Tickers(series)

	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, t := range tickers {
		for _, r := range series[t] {
			if _, ok := seen[r.AsOfDate]; !ok {
				seen[r.AsOfDate] = struct{}{}
				dates = append(dates, r.AsOfDate)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	pos := make(map[string]int, len(tickers))
	out := make([]models.PnLRecord, 0, len(dates))
	for _, d := range dates {
		rec := models.PnLRecord{
			Ticker:        models.PortfolioTicker,
			AsOfDate:      d,
			NetPosition:   decimal.Zero,
			AverageCost:   decimal.Zero,
			RealizedPnl:   decimal.Zero,
			UnrealizedPnl: decimal.Zero,
			TotalPnl:      decimal.Zero,
			NetExposure:   decimal.Zero,
		}
		for _, t := range tickers {
			s := series[t]
			i := pos[t]
			for i < len(s) && !s[i].AsOfDate.After(d) {
				i++
			}
			pos[t] = i
			if i == 0 {
				continue
			}
			last := s[i-1]
			rec.RealizedPnl = rec.RealizedPnl.Add(last.RealizedPnl)
			rec.UnrealizedPnl = rec.UnrealizedPnl.Add(last.UnrealizedPnl)
			rec.TotalPnl = rec.TotalPnl.Add(last.TotalPnl)
			rec.NetExposure = rec.NetExposure.Add(last.NetExposure)
		}
		out = append(out, rec)
	}
	return out
}
