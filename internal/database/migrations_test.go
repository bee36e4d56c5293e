package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)

	t.Run("all tables exist", func(t *testing.T) {
		for _, tableName := range []string{"trade_data", "stock_prices"} {
			var exists bool
			err := testDB.Raw().QueryRow(`
				SELECT EXISTS (
					SELECT FROM information_schema.tables
					WHERE table_schema = 'public'
					AND table_name = $1
				)
			`, tableName).Scan(&exists)

			require.NoError(t, err, "failed to check table existence for %s", tableName)
			assert.True(t, exists, "table %s should exist", tableName)
		}
	})

	t.Run("trade_data table has correct columns", func(t *testing.T) {
		expectedColumns := map[string]string{
			"id":         "bigint",
			"ticker":     "character varying",
			"trade_date": "date",
			"side":       "character varying",
			"quantity":   "numeric",
			"price":      "numeric",
			"order_id":   "character varying",
			"source":     "character varying",
			"created_at": "timestamp with time zone",
		}

		for colName, expectedType := range expectedColumns {
			var actualType string
			err := testDB.Raw().QueryRow(`
				SELECT data_type
				FROM information_schema.columns
				WHERE table_name = 'trade_data' AND column_name = $1
			`, colName).Scan(&actualType)

			require.NoError(t, err, "column %s should exist in trade_data table", colName)
			assert.Equal(t, expectedType, actualType, "column %s should have type %s", colName, expectedType)
		}
	})

	t.Run("stock_prices table has correct columns", func(t *testing.T) {
		expectedColumns := map[string]string{
			"ticker":      "character varying",
			"trade_date":  "date",
			"close_price": "numeric",
			"created_at":  "timestamp with time zone",
			"updated_at":  "timestamp with time zone",
		}

		for colName, expectedType := range expectedColumns {
			var actualType string
			err := testDB.Raw().QueryRow(`
				SELECT data_type
				FROM information_schema.columns
				WHERE table_name = 'stock_prices' AND column_name = $1
			`, colName).Scan(&actualType)

			require.NoError(t, err, "column %s should exist in stock_prices table", colName)
			assert.Equal(t, expectedType, actualType, "column %s should have type %s", colName, expectedType)
		}
	})

	t.Run("indexes exist", func(t *testing.T) {
		for _, indexName := range []string{"idx_trade_data_ticker_date", "idx_trade_data_order_source"} {
			var exists bool
			err := testDB.Raw().QueryRow(`
				SELECT EXISTS (
					SELECT FROM pg_indexes
					WHERE schemaname = 'public' AND indexname = $1
				)
			`, indexName).Scan(&exists)

			require.NoError(t, err)
			assert.True(t, exists, "index %s should exist", indexName)
		}
	})

	t.Run("check constraints reject non-positive values", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.Raw().Exec(`
			INSERT INTO trade_data (ticker, trade_date, side, quantity, price)
			VALUES ('AAPL', '2024-01-01', 'BUY', 0, 100)
		`)
		assert.Error(t, err)

		_, err = testDB.Raw().Exec(`
			INSERT INTO trade_data (ticker, trade_date, side, quantity, price)
			VALUES ('AAPL', '2024-01-01', 'HOLD', 1, 100)
		`)
		assert.Error(t, err)

		_, err = testDB.Raw().Exec(`
			INSERT INTO stock_prices (ticker, trade_date, close_price)
			VALUES ('AAPL', '2024-01-01', -1)
		`)
		assert.Error(t, err)
	})

	t.Run("migrate is idempotent", func(t *testing.T) {
		require.NoError(t, testDB.RunMigrations())
	})
}
