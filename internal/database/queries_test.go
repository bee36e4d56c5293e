package database

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &DB{conn: sqlDB}, mock
}

func TestFilterClause(t *testing.T) {
	start := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		filter    models.QueryFilter
		wantWhere string
		wantArgs  int
	}{
		{"empty", models.QueryFilter{}, "", 0},
		{"ticker only", models.QueryFilter{Ticker: "AAPL"}, " WHERE ticker = $1", 1},
		{"window only", models.QueryFilter{StartDate: &start, EndDate: &end}, " WHERE trade_date >= $1 AND trade_date <= $2", 2},
		{"all", models.QueryFilter{Ticker: "AAPL", StartDate: &start, EndDate: &end}, " WHERE ticker = $1 AND trade_date >= $2 AND trade_date <= $3", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := filterClause(tt.filter, "trade_date")
			assert.Equal(t, tt.wantWhere, where)
			assert.Len(t, args, tt.wantArgs)
		})
	}

	_, args := filterClause(models.QueryFilter{StartDate: &start}, "trade_date")
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), args[0])
}

func TestCreateTradesBatch_SkipsConflicts(t *testing.T) {
	db, mock := newMockDB(t)

	trades := []*models.Trade{
		{Ticker: "AAPL", TradeDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Side: models.SideBuy, Quantity: decimal.NewFromInt(10), Price: decimal.NewFromInt(100), OrderID: "a", Source: "robinhood"},
		{Ticker: "AAPL", TradeDate: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Side: models.SideSell, Quantity: decimal.NewFromInt(5), Price: decimal.NewFromInt(110), OrderID: "b", Source: "robinhood"},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO trade_data")
	prep.ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	prep.ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	n, err := db.CreateTradesBatch(trades)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(7), trades[0].SequenceID)
	assert.Zero(t, trades[1].SequenceID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTradesBatch_ReturnsErrorIfBeginFails(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin().WillReturnError(errors.New("begin failed"))

	_, err := db.CreateTradesBatch(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTradesBatch_RollsBackOnInsertError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO trade_data").
		ExpectQuery().WillReturnError(errors.New("check constraint"))
	mock.ExpectRollback()

	_, err := db.CreateTradesBatch([]*models.Trade{
		{Ticker: "AAPL", Side: models.SideBuy, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(1)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert trade for AAPL")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTrades_ScansRows(t *testing.T) {
	db, mock := newMockDB(t)

	created := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "ticker", "trade_date", "side", "quantity", "price", "order_id", "source", "created_at"}).
		AddRow(1, "AAPL", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "BUY", "100", "150.25", nil, "upload", created).
		AddRow(2, "AAPL", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), "SELL", "40", "155", "ord-9", "robinhood", created)

	mock.ExpectQuery(`SELECT .* FROM trade_data WHERE ticker = \$1 ORDER BY ticker, trade_date, id`).
		WithArgs("AAPL").
		WillReturnRows(rows)

	trades, err := db.GetTrades(models.QueryFilter{Ticker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, models.SideBuy, trades[0].Side)
	assert.Empty(t, trades[0].OrderID)
	assert.True(t, decimal.RequireFromString("150.25").Equal(trades[0].Price))
	assert.Equal(t, models.SideSell, trades[1].Side)
	assert.Equal(t, "ord-9", trades[1].OrderID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTrades_RejectsUnknownSide(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "ticker", "trade_date", "side", "quantity", "price", "order_id", "source", "created_at"}).
		AddRow(1, "AAPL", time.Now(), "HOLD", "1", "1", nil, "upload", time.Now())
	mock.ExpectQuery("SELECT .* FROM trade_data").WillReturnRows(rows)

	_, err := db.GetTrades(models.QueryFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid trade side")
}

func TestGetLatestPrice_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT .* FROM stock_prices").
		WithArgs("AAPL").
		WillReturnError(sql.ErrNoRows)

	_, err := db.GetLatestPrice("AAPL")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePricesByTicker_ReturnsRowsAffected(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("DELETE FROM stock_prices").
		WithArgs("AAPL").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := db.DeletePricesByTicker("AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPrice_UsesOnConflict(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`INSERT INTO stock_prices .* ON CONFLICT \(ticker, trade_date\) DO UPDATE`).
		WithArgs("AAPL", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := db.UpsertPrice(&models.PriceObservation{
		Ticker:     "AAPL",
		Date:       time.Date(2024, 1, 2, 18, 30, 0, 0, time.UTC),
		ClosePrice: decimal.NewFromInt(185),
	})
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	db := NewFromConn(sqlDB)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err = db.Ping(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping database")
}
