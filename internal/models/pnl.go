package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioTicker labels aggregated records
const PortfolioTicker = "PORTFOLIO"

// Max profit strategy labels
const (
	StrategyLongOnly  = "Long Only"
	StrategyShortSale = "Short Sale"
)

// PnLRecord is the profit and loss of one ticker at the end of one day
type PnLRecord struct {
	Ticker        string              `json:"ticker"`
	AsOfDate      time.Time           `json:"as_of_date"`
	NetPosition   decimal.Decimal     `json:"net_position"`
	AverageCost   decimal.Decimal     `json:"average_cost"`
	MarketPrice   decimal.NullDecimal `json:"market_price"`
	RealizedPnl   decimal.Decimal     `json:"realized_pnl"`
	UnrealizedPnl decimal.Decimal     `json:"unrealized_pnl"`
	TotalPnl      decimal.Decimal     `json:"total_pnl"`
	NetExposure   decimal.Decimal     `json:"net_exposure"`
}

// MaxProfitResult is the best single round trip over a price history
type MaxProfitResult struct {
	Ticker           string          `json:"ticker"`
	Strategy         string          `json:"strategy"`
	BuyDate          *time.Time      `json:"buy_date"`
	SellDate         *time.Time      `json:"sell_date"`
	BuyPrice         decimal.Decimal `json:"buy_price"`
	SellPrice        decimal.Decimal `json:"sell_price"`
	MaxProfit        decimal.Decimal `json:"max_profit"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
}

// QueryFilter narrows trade and price lookups. Zero values mean no filter.
type QueryFilter struct {
	Ticker    string
	StartDate *time.Time
	EndDate   *time.Time
}

// Contains reports whether d falls inside the filter's date window
func (f QueryFilter) Contains(d time.Time) bool {
	if f.StartDate != nil && d.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && d.After(*f.EndDate) {
		return false
	}
	return true
}
