package analytics

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

var hundred = decimal.NewFromInt(100)

// MaxProfit finds the best single round trip in a ticker's close history.
// Long Only buys first and sells later; Short Sale sells first and buys
// back later. The earliest best pair wins ties. When no pair makes money
// the result has zero profit and no dates.
func MaxProfit(ticker string, prices []models.PriceObservation, strategy string) (models.MaxProfitResult, error) {
	if strategy != models.StrategyLongOnly && strategy != models.StrategyShortSale {
		return models.MaxProfitResult{}, fmt.Errorf("unknown strategy: %q", strategy)
	}
	own := make([]models.PriceObservation, 0, len(prices))
	for _, p := range prices {
		if p.Ticker == ticker {
			own = append(own, p)
		}
	}
	valuer, err := NewMarketValuer(own)
	if err != nil {
		return models.MaxProfitResult{}, err
	}
	return maxProfit(ticker, valuer.series[ticker], strategy), nil
}

// MaxProfitSummary returns both strategies for every ticker with at least
// two observations, ordered by ticker
func MaxProfitSummary(prices []models.PriceObservation) ([]models.MaxProfitResult, error) {
	valuer, err := NewMarketValuer(prices)
	if err != nil {
		return nil, err
	}
	var out []models.MaxProfitResult
	for _, ticker := range valuer.Tickers() {
		s := valuer.series[ticker]
		if len(s.dates) < 2 {
			continue
		}
		out = append(out,
			maxProfit(ticker, s, models.StrategyLongOnly),
			maxProfit(ticker, s, models.StrategyShortSale),
		)
	}
	return out, nil
}

func maxProfit(ticker string, s *priceSeries, strategy string) models.MaxProfitResult {
	res := models.MaxProfitResult{
		Ticker:           ticker,
		Strategy:         strategy,
		BuyPrice:         decimal.Zero,
		SellPrice:        decimal.Zero,
		MaxProfit:        decimal.Zero,
		ProfitPercentage: decimal.Zero,
	}
	if s == nil || len(s.dates) < 2 {
		return res
	}

	long := strategy == models.StrategyLongOnly
	entry, bestEntry, bestExit := 0, -1, -1
	best := decimal.Zero
	for j := 1; j < len(s.prices); j++ {
		var gain decimal.Decimal
		if long {
			gain = s.prices[j].Sub(s.prices[entry])
		} else {
			gain = s.prices[entry].Sub(s.prices[j])
		}
		if gain.GreaterThan(best) {
			best, bestEntry, bestExit = gain, entry, j
		}
		// a cheaper buy (long) or richer sell (short) is a better entry
		if (long && s.prices[j].LessThan(s.prices[entry])) || (!long && s.prices[j].GreaterThan(s.prices[entry])) {
			entry = j
		}
	}
	if bestEntry < 0 {
		return res
	}

	entryDate, exitDate := s.dates[bestEntry], s.dates[bestExit]
	entryPrice, exitPrice := s.prices[bestEntry], s.prices[bestExit]
	res.MaxProfit = best
	res.ProfitPercentage = best.Div(entryPrice).Mul(hundred).Round(2)
	if long {
		res.BuyDate, res.SellDate = &entryDate, &exitDate
		res.BuyPrice, res.SellPrice = entryPrice, exitPrice
	} else {
		res.SellDate, res.BuyDate = &entryDate, &exitDate
		res.SellPrice, res.BuyPrice = entryPrice, exitPrice
	}
	return res
}
