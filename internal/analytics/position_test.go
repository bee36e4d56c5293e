package analytics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

func TestProcess(t *testing.T) {
	t.Run("same direction buys average the cost", func(t *testing.T) {
		events, err := Process("AAPL", []models.Trade{
			buy("AAPL", 1, 1, "10", "10"),
			buy("AAPL", 2, 2, "10", "20"),
		})
		require.NoError(t, err)
		require.Len(t, events, 2)

		last := events[1].State
		assertDecimal(t, "20", last.OpenQuantity)
		assertDecimal(t, "15", last.AverageCost)
		assertDecimal(t, "0", last.CumulativeRealizedPnl)
		assertDecimal(t, "0", events[1].RealizedPnl)
	})

	t.Run("full close realizes the whole gain", func(t *testing.T) {
		events, err := Process("AAPL", []models.Trade{
			buy("AAPL", 1, 1, "10", "10"),
			sell("AAPL", 2, 2, "10", "15"),
		})
		require.NoError(t, err)

		last := events[1].State
		assertDecimal(t, "50", events[1].RealizedPnl)
		assertDecimal(t, "50", last.CumulativeRealizedPnl)
		assert.True(t, last.IsFlat())
		assertDecimal(t, "0", last.AverageCost)
	})

	t.Run("partial close keeps the average cost", func(t *testing.T) {
		events, err := Process("AAPL", []models.Trade{
			buy("AAPL", 1, 1, "10", "10"),
			sell("AAPL", 2, 2, "4", "15"),
		})
		require.NoError(t, err)

		last := events[1].State
		assertDecimal(t, "20", last.CumulativeRealizedPnl)
		assertDecimal(t, "6", last.OpenQuantity)
		assertDecimal(t, "10", last.AverageCost)
	})

	t.Run("oversized sell flips long to short at the trade price", func(t *testing.T) {
		events, err := Process("AAPL", []models.Trade{
			buy("AAPL", 1, 1, "5", "10"),
			sell("AAPL", 2, 2, "8", "12"),
		})
		require.NoError(t, err)

		last := events[1].State
		assertDecimal(t, "10", last.CumulativeRealizedPnl)
		assertDecimal(t, "-3", last.OpenQuantity)
		assertDecimal(t, "12", last.AverageCost)
	})

	t.Run("oversized buy flips short to long", func(t *testing.T) {
		events, err := Process("AAPL", []models.Trade{
			sell("AAPL", 1, 1, "4", "50"),
			buy("AAPL", 2, 2, "10", "40"),
		})
		require.NoError(t, err)

		last := events[1].State
		// covering 4 shorts at 40 against 50
		assertDecimal(t, "40", last.CumulativeRealizedPnl)
		assertDecimal(t, "6", last.OpenQuantity)
		assertDecimal(t, "40", last.AverageCost)
	})

	t.Run("short adds average proceeds and covers realize inverted pnl", func(t *testing.T) {
		events, err := Process("TSLA", []models.Trade{
			sell("TSLA", 1, 1, "10", "20"),
			sell("TSLA", 2, 2, "10", "10"),
			buy("TSLA", 3, 3, "5", "12"),
		})
		require.NoError(t, err)

		assertDecimal(t, "-20", events[1].State.OpenQuantity)
		assertDecimal(t, "15", events[1].State.AverageCost)

		last := events[2].State
		assertDecimal(t, "15", events[2].RealizedPnl)
		assertDecimal(t, "-15", last.OpenQuantity)
		assertDecimal(t, "15", last.AverageCost)
	})

	t.Run("losing long close realizes a loss", func(t *testing.T) {
		events, err := Process("AAPL", []models.Trade{
			buy("AAPL", 1, 1, "3", "100"),
			sell("AAPL", 2, 2, "3", "90"),
		})
		require.NoError(t, err)
		assertDecimal(t, "-30", events[1].State.CumulativeRealizedPnl)
	})

	t.Run("full close after an uneven average is exact", func(t *testing.T) {
		events, err := Process("AAPL", []models.Trade{
			buy("AAPL", 1, 1, "1", "1"),
			buy("AAPL", 2, 2, "2", "2"),
			sell("AAPL", 3, 3, "3", "2"),
		})
		require.NoError(t, err)

		last := events[2].State
		assertDecimal(t, "1", events[2].RealizedPnl)
		assertDecimal(t, "1", last.CumulativeRealizedPnl)
		assertDecimal(t, "0", last.OpenCost)
		assertDecimal(t, "0", last.AverageCost)
	})

	t.Run("partial closes in thirds leave no residue", func(t *testing.T) {
		events, err := Process("AAPL", []models.Trade{
			buy("AAPL", 1, 1, "1", "10"),
			buy("AAPL", 1, 2, "2", "11"),
			sell("AAPL", 2, 3, "1", "12"),
			sell("AAPL", 3, 4, "1", "12"),
			sell("AAPL", 4, 5, "1", "12"),
		})
		require.NoError(t, err)

		// cost 32 for 3 shares sold for 36
		assertDecimal(t, "4", events[4].State.CumulativeRealizedPnl)
		assert.True(t, events[4].State.IsFlat())
	})

	t.Run("short cover after an uneven average is exact", func(t *testing.T) {
		events, err := Process("AAPL", []models.Trade{
			sell("AAPL", 1, 1, "1", "1"),
			sell("AAPL", 2, 2, "2", "2"),
			buy("AAPL", 3, 3, "3", "1"),
		})
		require.NoError(t, err)
		assertDecimal(t, "2", events[2].State.CumulativeRealizedPnl)
	})

	t.Run("reopening after flat starts a fresh basis", func(t *testing.T) {
		events, err := Process("AAPL", []models.Trade{
			buy("AAPL", 1, 1, "2", "10"),
			sell("AAPL", 2, 2, "2", "11"),
			buy("AAPL", 3, 3, "1", "30"),
		})
		require.NoError(t, err)

		last := events[2].State
		assertDecimal(t, "1", last.OpenQuantity)
		assertDecimal(t, "30", last.AverageCost)
		assertDecimal(t, "2", last.CumulativeRealizedPnl)
	})

	t.Run("same day trades use sequence order", func(t *testing.T) {
		events, err := Process("AAPL", []models.Trade{
			buy("AAPL", 1, 7, "1", "10"),
			sell("AAPL", 1, 8, "1", "12"),
		})
		require.NoError(t, err)
		assertDecimal(t, "2", events[1].State.CumulativeRealizedPnl)
	})

	t.Run("empty input yields no events", func(t *testing.T) {
		events, err := Process("AAPL", nil)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestProcessOrdering(t *testing.T) {
	t.Run("earlier date after later date", func(t *testing.T) {
		_, err := Process("AAPL", []models.Trade{
			buy("AAPL", 2, 1, "1", "10"),
			buy("AAPL", 1, 2, "1", "10"),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrOrdering))

		var oe *OrderingError
		require.True(t, errors.As(err, &oe))
		assert.Equal(t, 1, oe.Index)
		assert.Equal(t, "AAPL", oe.Ticker)
	})

	t.Run("sequence decreases within a day", func(t *testing.T) {
		_, err := Process("AAPL", []models.Trade{
			buy("AAPL", 1, 5, "1", "10"),
			buy("AAPL", 1, 4, "1", "10"),
		})
		assert.ErrorIs(t, err, ErrOrdering)
	})

	t.Run("repeated date and sequence is ambiguous", func(t *testing.T) {
		_, err := Process("AAPL", []models.Trade{
			buy("AAPL", 1, 5, "1", "10"),
			sell("AAPL", 1, 5, "1", "10"),
		})
		assert.ErrorIs(t, err, ErrOrdering)
	})

	t.Run("SortTrades restores order without touching input", func(t *testing.T) {
		in := []models.Trade{
			buy("AAPL", 3, 1, "1", "10"),
			buy("AAPL", 1, 9, "1", "10"),
			buy("AAPL", 1, 2, "1", "10"),
		}
		sorted := SortTrades(in)

		assert.Equal(t, int64(2), sorted[0].SequenceID)
		assert.Equal(t, int64(9), sorted[1].SequenceID)
		assert.Equal(t, int64(1), sorted[2].SequenceID)
		assert.Equal(t, int64(1), in[0].SequenceID)

		_, err := Process("AAPL", sorted)
		assert.NoError(t, err)
	})
}

func TestProcessValidation(t *testing.T) {
	bad := []struct {
		name  string
		trade models.Trade
	}{
		{"zero quantity", buy("AAPL", 1, 1, "0", "10")},
		{"negative quantity", buy("AAPL", 1, 1, "-1", "10")},
		{"zero price", buy("AAPL", 1, 1, "1", "0")},
		{"negative price", sell("AAPL", 1, 1, "1", "-5")},
		{"other ticker", buy("MSFT", 1, 1, "1", "10")},
		{"unknown side", models.Trade{Ticker: "AAPL", TradeDate: day(1), Quantity: dec("1"), Price: dec("1")}},
	}

	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Process("AAPL", []models.Trade{buy("AAPL", 1, 0, "1", "10"), tc.trade})
			require.Error(t, err)

			var ite *InvalidTradeError
			require.True(t, errors.As(err, &ite))
			assert.Equal(t, tc.trade.Ticker, ite.Trade.Ticker)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestPositionTrackerIncremental(t *testing.T) {
	pt := NewPositionTracker("AAPL")
	assert.True(t, pt.State().IsFlat())

	_, err := pt.Apply(buy("AAPL", 1, 1, "10", "10"))
	require.NoError(t, err)
	ev, err := pt.Apply(sell("AAPL", 2, 2, "4", "15"))
	require.NoError(t, err)

	assertDecimal(t, "20", ev.RealizedPnl)
	assert.Equal(t, ev.State, pt.State())

	_, err = pt.Apply(buy("AAPL", 1, 3, "1", "10"))
	assert.ErrorIs(t, err, ErrOrdering)
	// a rejected trade leaves the position untouched
	assertDecimal(t, "6", pt.State().OpenQuantity)
}

func TestValidateTrade(t *testing.T) {
	tests := []struct {
		name  string
		trade models.Trade
		ok    bool
	}{
		{"valid buy", buy("AAPL", 1, 1, "1", "10"), true},
		{"zero quantity", buy("AAPL", 1, 1, "0", "10"), false},
		{"negative price", sell("AAPL", 1, 1, "1", "-10"), false},
		{"missing ticker", buy("", 1, 1, "1", "10"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTrade(tt.trade)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTrade)
		})
	}
}
