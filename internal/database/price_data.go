package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/portfolio-analytics/internal/models"
)

const upsertPriceQuery = `
	INSERT INTO stock_prices (ticker, trade_date, close_price, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $4)
	ON CONFLICT (ticker, trade_date) DO UPDATE SET
		close_price = EXCLUDED.close_price,
		updated_at = EXCLUDED.updated_at
`

// UpsertPrice inserts a daily close, replacing any existing close for the
// same ticker and date
func (db *DB) UpsertPrice(p *models.PriceObservation) error {
	now := time.Now()
	_, err := db.conn.Exec(upsertPriceQuery, p.Ticker, models.NormalizeDate(p.Date), p.ClosePrice, now)
	if err != nil {
		return fmt.Errorf("failed to upsert price: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// UpsertPricesBatch upserts multiple closes in one transaction. Later
// entries for the same ticker and date overwrite earlier ones.
func (db *DB) UpsertPricesBatch(prices []*models.PriceObservation) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertPriceQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range prices {
		if _, err := stmt.Exec(p.Ticker, models.NormalizeDate(p.Date), p.ClosePrice, now); err != nil {
			return 0, fmt.Errorf("failed to upsert price for %s: %w", p.Ticker, err)
		}
		p.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int64(len(prices)), nil
}

// GetPrices returns closes matching the filter ordered by ticker and date
func (db *DB) GetPrices(filter models.QueryFilter) ([]*models.PriceObservation, error) {
	where, args := filterClause(filter, "trade_date")
	query := `
		SELECT ticker, trade_date, close_price, created_at, updated_at
		FROM stock_prices` + where + `
		ORDER BY ticker, trade_date`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}
	defer rows.Close()

	var prices []*models.PriceObservation
	for rows.Next() {
		var p models.PriceObservation
		if err := rows.Scan(&p.Ticker, &p.Date, &p.ClosePrice, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.Date = models.NormalizeDate(p.Date)
		prices = append(prices, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prices: %w", err)
	}
	return prices, nil
}

// GetLatestPrice returns the most recent close for a ticker
func (db *DB) GetLatestPrice(ticker string) (*models.PriceObservation, error) {
	query := `
		SELECT ticker, trade_date, close_price, created_at, updated_at
		FROM stock_prices
		WHERE ticker = $1
		ORDER BY trade_date DESC
		LIMIT 1
	`
	var p models.PriceObservation
	err := db.conn.QueryRow(query, ticker).Scan(&p.Ticker, &p.Date, &p.ClosePrice, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest price for %s: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price: %w", err)
	}
	p.Date = models.NormalizeDate(p.Date)
	return &p, nil
}

// DeletePricesByTicker removes every close for a ticker
func (db *DB) DeletePricesByTicker(ticker string) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM stock_prices WHERE ticker = $1`, ticker)
	if err != nil {
		return 0, fmt.Errorf("failed to delete prices: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
