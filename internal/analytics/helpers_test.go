package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func buy(ticker string, d int, seq int64, qty, price string) models.Trade {
	return models.Trade{
		SequenceID: seq,
		Ticker:     ticker,
		TradeDate:  day(d),
		Side:       models.SideBuy,
		Quantity:   dec(qty),
		Price:      dec(price),
	}
}

func sell(ticker string, d int, seq int64, qty, price string) models.Trade {
	t := buy(ticker, d, seq, qty, price)
	t.Side = models.SideSell
	return t
}

func price(ticker string, d int, close string) models.PriceObservation {
	return models.PriceObservation{Ticker: ticker, Date: day(d), ClosePrice: dec(close)}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}
