// Package csvio reads trade and price uploads and writes PnL results as CSV.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

// ParseError reports a malformed CSV row. Line is 1-based and counts the
// header.
type ParseError struct {
	Line   int
	Column string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("csv line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("csv line %d, column %s: %s", e.Line, e.Column, e.Reason)
}

// table is a header-indexed CSV body
type table struct {
	index map[string]int
	rows  [][]string
}

func readTable(r io.Reader, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, &ParseError{Line: perr.Line, Reason: perr.Err.Error()}
		}
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, &ParseError{Line: 1, Reason: "missing header"}
	}

	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &ParseError{
			Line:   1,
			Reason: fmt.Sprintf("csv must contain columns: %s", strings.Join(required, ", ")),
			Column: strings.Join(missing, ", "),
		}
	}

	return &table{index: index, rows: records[1:]}, nil
}

func (t *table) has(col string) bool {
	_, ok := t.index[col]
	return ok
}

func (t *table) field(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parsePositive(line int, col, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &ParseError{Line: line, Column: col, Reason: fmt.Sprintf("invalid number %q", raw)}
	}
	if !d.IsPositive() {
		return decimal.Zero, &ParseError{Line: line, Column: col, Reason: "must be positive"}
	}
	return d, nil
}

// ParseTrades reads trades with columns date,ticker,quantity,price and an
// optional side column. Without a side column the quantity is signed:
// positive buys, negative sells. Sequence ids follow row order.
func ParseTrades(r io.Reader) ([]models.Trade, error) {
	tbl, err := readTable(r, "date", "ticker", "quantity", "price")
	if err != nil {
		return nil, err
	}
	withSide := tbl.has("side")

	trades := make([]models.Trade, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		line := i + 2
		if blank(row) {
			continue
		}

		date, err := models.ParseDate(tbl.field(row, "date"))
		if err != nil {
			return nil, &ParseError{Line: line, Column: "date", Reason: err.Error()}
		}

		ticker := tbl.field(row, "ticker")
		if ticker == "" {
			return nil, &ParseError{Line: line, Column: "ticker", Reason: "required"}
		}

		price, err := parsePositive(line, "price", tbl.field(row, "price"))
		if err != nil {
			return nil, err
		}

		var side models.Side
		var qty decimal.Decimal
		if withSide {
			if side, err = models.ParseSide(tbl.field(row, "side")); err != nil {
				return nil, &ParseError{Line: line, Column: "side", Reason: err.Error()}
			}
			if qty, err = parsePositive(line, "quantity", tbl.field(row, "quantity")); err != nil {
				return nil, err
			}
		} else {
			raw := tbl.field(row, "quantity")
			signed, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, &ParseError{Line: line, Column: "quantity", Reason: fmt.Sprintf("invalid number %q", raw)}
			}
			if signed.IsZero() {
				return nil, &ParseError{Line: line, Column: "quantity", Reason: "must be non-zero"}
			}
			side = models.SideBuy
			if signed.IsNegative() {
				side = models.SideSell
			}
			qty = signed.Abs()
		}

		trades = append(trades, models.Trade{
			SequenceID: int64(len(trades) + 1),
			Ticker:     ticker,
			TradeDate:  date,
			Side:       side,
			Quantity:   qty,
			Price:      price,
		})
	}
	return trades, nil
}

// ParsePrices reads daily closes with columns date,ticker,close
func ParsePrices(r io.Reader) ([]models.PriceObservation, error) {
	tbl, err := readTable(r, "date", "ticker", "close")
	if err != nil {
		return nil, err
	}

	prices := make([]models.PriceObservation, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		line := i + 2
		if blank(row) {
			continue
		}

		date, err := models.ParseDate(tbl.field(row, "date"))
		if err != nil {
			return nil, &ParseError{Line: line, Column: "date", Reason: err.Error()}
		}

		ticker := tbl.field(row, "ticker")
		if ticker == "" {
			return nil, &ParseError{Line: line, Column: "ticker", Reason: "required"}
		}

		closePrice, err := parsePositive(line, "close", tbl.field(row, "close"))
		if err != nil {
			return nil, err
		}

		prices = append(prices, models.PriceObservation{
			Ticker:     ticker,
			Date:       date,
			ClosePrice: closePrice,
		})
	}
	return prices, nil
}

var recordHeader = []string{
	"ticker", "date", "net_position", "average_cost", "market_price",
	"realized_pnl", "unrealized_pnl", "total_pnl", "net_exposure",
}

// WriteRecords writes PnL records with a header row. A missing market
// price is written as an empty field.
func WriteRecords(w io.Writer, records []models.PnLRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(recordHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		price := ""
		if r.MarketPrice.Valid {
			price = r.MarketPrice.Decimal.String()
		}
		row := []string{
			r.Ticker,
			r.AsOfDate.Format(models.DateLayout),
			r.NetPosition.String(),
			r.AverageCost.String(),
			price,
			r.RealizedPnl.String(),
			r.UnrealizedPnl.String(),
			r.TotalPnl.String(),
			r.NetExposure.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteMaxProfit writes the max-profit summary with a header row
func WriteMaxProfit(w io.Writer, results []models.MaxProfitResult) error {
	cw := csv.NewWriter(w)
	header := []string{"ticker", "strategy", "buy_date", "sell_date", "buy_price", "sell_price", "max_profit", "profit_percentage"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range results {
		row := []string{
			r.Ticker,
			r.Strategy,
			formatDate(r.BuyDate),
			formatDate(r.SellDate),
			r.BuyPrice.String(),
			r.SellPrice.String(),
			r.MaxProfit.String(),
			r.ProfitPercentage.StringFixed(2),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(models.DateLayout)
}
