package database

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

func TestPriceDataRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)

	t.Run("UpsertPrice upserts on conflict", func(t *testing.T) {
		testDB.TruncateAll(t)

		date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		require.NoError(t, testDB.UpsertPrice(&models.PriceObservation{
			Ticker: "AAPL", Date: date, ClosePrice: decimal.NewFromFloat(177.25),
		}))

		// Same ticker and date, different close
		require.NoError(t, testDB.UpsertPrice(&models.PriceObservation{
			Ticker: "AAPL", Date: date, ClosePrice: decimal.NewFromFloat(179.00),
		}))

		prices, err := testDB.GetPrices(models.QueryFilter{Ticker: "AAPL"})
		require.NoError(t, err)
		require.Len(t, prices, 1)
		assert.True(t, decimal.NewFromFloat(179.00).Equal(prices[0].ClosePrice))
		assert.Equal(t, date, prices[0].Date)
	})

	t.Run("UpsertPricesBatch keeps last duplicate", func(t *testing.T) {
		testDB.TruncateAll(t)

		date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		n, err := testDB.UpsertPricesBatch([]*models.PriceObservation{
			{Ticker: "MSFT", Date: date, ClosePrice: decimal.NewFromInt(370)},
			{Ticker: "AAPL", Date: date, ClosePrice: decimal.NewFromInt(180)},
			{Ticker: "AAPL", Date: date, ClosePrice: decimal.NewFromInt(181)},
			{Ticker: "AAPL", Date: date.AddDate(0, 0, 1), ClosePrice: decimal.NewFromInt(182)},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)

		prices, err := testDB.GetPrices(models.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, prices, 3)
		assert.Equal(t, "AAPL", prices[0].Ticker)
		assert.True(t, decimal.NewFromInt(181).Equal(prices[0].ClosePrice))
		assert.Equal(t, "AAPL", prices[1].Ticker)
		assert.Equal(t, "MSFT", prices[2].Ticker)
	})

	t.Run("GetLatestPrice returns most recent close", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.UpsertPricesBatch([]*models.PriceObservation{
			{Ticker: "TSLA", Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), ClosePrice: decimal.NewFromInt(230)},
			{Ticker: "TSLA", Date: time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), ClosePrice: decimal.NewFromInt(219)},
		})
		require.NoError(t, err)

		latest, err := testDB.GetLatestPrice("TSLA")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), latest.Date)
		assert.True(t, decimal.NewFromInt(219).Equal(latest.ClosePrice))

		_, err = testDB.GetLatestPrice("NONE")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("DeletePricesByTicker", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.UpsertPricesBatch([]*models.PriceObservation{
			{Ticker: "AAPL", Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), ClosePrice: decimal.NewFromInt(180)},
			{Ticker: "GOOGL", Date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), ClosePrice: decimal.NewFromInt(140)},
		})
		require.NoError(t, err)

		n, err := testDB.DeletePricesByTicker("AAPL")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = testDB.DeletePricesByTicker("AAPL")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
