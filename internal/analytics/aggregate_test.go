package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

func TestAggregate(t *testing.T) {
	t.Run("forward fills tickers missing a date", func(t *testing.T) {
		series, err := BuildAll(
			[]models.Trade{buy("A", 1, 1, "1", "10"), buy("B", 1, 2, "2", "5")},
			[]models.PriceObservation{price("A", 1, "11"), price("A", 2, "12"), price("B", 1, "6")},
		)
		require.NoError(t, err)

		portfolio := Aggregate(series)
		require.Len(t, portfolio, 2)

		assert.Equal(t, models.PortfolioTicker, portfolio[0].Ticker)
		assertDecimal(t, "3", portfolio[0].UnrealizedPnl)  // 1 + 2
		assertDecimal(t, "23", portfolio[0].NetExposure)   // 11 + 12
		assertDecimal(t, "4", portfolio[1].UnrealizedPnl)  // 2 + B's day 1 value
		assertDecimal(t, "24", portfolio[1].NetExposure)   // 12 + 12
		assertDecimal(t, "0", portfolio[1].NetPosition)
		assert.False(t, portfolio[1].MarketPrice.Valid)
	})

	t.Run("tickers contribute nothing before their first record", func(t *testing.T) {
		series, err := BuildAll(
			[]models.Trade{buy("A", 1, 1, "1", "10"), sell("A", 2, 2, "1", "15"), buy("B", 3, 3, "1", "20")},
			[]models.PriceObservation{price("B", 3, "25")},
		)
		require.NoError(t, err)

		portfolio := Aggregate(series)
		require.Len(t, portfolio, 3)
		assertDecimal(t, "0", portfolio[0].TotalPnl)
		assertDecimal(t, "5", portfolio[1].RealizedPnl)
		assertDecimal(t, "5", portfolio[2].RealizedPnl)
		assertDecimal(t, "5", portfolio[2].UnrealizedPnl)
		assertDecimal(t, "10", portfolio[2].TotalPnl)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Aggregate(nil))
	})
}
