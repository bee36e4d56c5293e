package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trogers1052/portfolio-analytics/internal/models"
)

const tradeColumns = `id, ticker, trade_date, side, quantity, price, order_id, source, created_at`

// CreateTrade inserts a single trade. Trades carrying an order_id that
// already exists for the same source are skipped and reported as not
// inserted.
func (db *DB) CreateTrade(t *models.Trade) (bool, error) {
	query := `
		INSERT INTO trade_data (ticker, trade_date, side, quantity, price, order_id, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (order_id, source) WHERE order_id IS NOT NULL DO NOTHING
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRow(query,
		t.Ticker, models.NormalizeDate(t.TradeDate), t.Side.String(), t.Quantity, t.Price,
		nullString(t.OrderID), sourceOrDefault(t.Source), now,
	).Scan(&t.SequenceID)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create trade: %w", err)
	}
	t.CreatedAt = now
	return true, nil
}

// CreateTradesBatch inserts trades in one transaction and returns how many
// rows were written. Sequence ids follow slice order.
func (db *DB) CreateTradesBatch(trades []*models.Trade) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO trade_data (ticker, trade_date, side, quantity, price, order_id, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (order_id, source) WHERE order_id IS NOT NULL DO NOTHING
		RETURNING id
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	var inserted int64
	for _, t := range trades {
		err := stmt.QueryRow(
			t.Ticker, models.NormalizeDate(t.TradeDate), t.Side.String(), t.Quantity, t.Price,
			nullString(t.OrderID), sourceOrDefault(t.Source), now,
		).Scan(&t.SequenceID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to insert trade for %s: %w", t.Ticker, err)
		}
		t.CreatedAt = now
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// TradeExistsByOrderID checks if a trade with the given order_id and source already exists
func (db *DB) TradeExistsByOrderID(orderID, source string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM trade_data WHERE order_id = $1 AND source = $2)`
	var exists bool
	if err := db.conn.QueryRow(query, orderID, source).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check trade existence: %w", err)
	}
	return exists, nil
}

// GetTrades returns trades matching the filter in processing order:
// trade date, then insertion sequence.
func (db *DB) GetTrades(filter models.QueryFilter) ([]*models.Trade, error) {
	where, args := filterClause(filter, "trade_date")
	query := `SELECT ` + tradeColumns + ` FROM trade_data` + where + ` ORDER BY ticker, trade_date, id`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return trades, nil
}

// DeleteTradesByTicker removes every trade for a ticker
func (db *DB) DeleteTradesByTicker(ticker string) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM trade_data WHERE ticker = $1`, ticker)
	if err != nil {
		return 0, fmt.Errorf("failed to delete trades: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func scanTrade(rows *sql.Rows) (*models.Trade, error) {
	var t models.Trade
	var side string
	var orderID sql.NullString

	err := rows.Scan(
		&t.SequenceID, &t.Ticker, &t.TradeDate, &side, &t.Quantity, &t.Price,
		&orderID, &t.Source, &t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan trade: %w", err)
	}

	if t.Side, err = models.ParseSide(side); err != nil {
		return nil, fmt.Errorf("failed to scan trade %d: %w", t.SequenceID, err)
	}
	t.TradeDate = models.NormalizeDate(t.TradeDate)
	if orderID.Valid {
		t.OrderID = orderID.String
	}
	return &t, nil
}

// filterClause builds a WHERE clause for ticker and inclusive date bounds
func filterClause(filter models.QueryFilter, dateColumn string) (string, []any) {
	var conds []string
	var args []any

	if filter.Ticker != "" {
		args = append(args, filter.Ticker)
		conds = append(conds, fmt.Sprintf("ticker = $%d", len(args)))
	}
	if filter.StartDate != nil {
		args = append(args, models.NormalizeDate(*filter.StartDate))
		conds = append(conds, fmt.Sprintf("%s >= $%d", dateColumn, len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, models.NormalizeDate(*filter.EndDate))
		conds = append(conds, fmt.Sprintf("%s <= $%d", dateColumn, len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func sourceOrDefault(s string) string {
	if s == "" {
		return "upload"
	}
	return s
}
