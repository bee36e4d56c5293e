package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/trogers1052/portfolio-analytics/internal/analytics"
	"github.com/trogers1052/portfolio-analytics/internal/csvio"
	"github.com/trogers1052/portfolio-analytics/internal/models"
)

// stdout is swapped out in tests
var stdout io.Writer = os.Stdout

var commands = []subcommands.Command{
	&historyCmd{},
	&portfolioCmd{},
	&maxProfitCmd{},
}

// inputFlags are shared by the history and portfolio commands
type inputFlags struct {
	trades string
	prices string
	start  string
	end    string
	format string
}

func (in *inputFlags) register(f *flag.FlagSet) {
	f.StringVar(&in.trades, "trades", "trades.csv", "CSV of trades: date,ticker,quantity,price[,side]")
	f.StringVar(&in.prices, "prices", "prices.csv", "CSV of daily closes: date,ticker,close")
	f.StringVar(&in.start, "s", "", "first date to print (YYYY-MM-DD)")
	f.StringVar(&in.end, "e", "", "last date to print (YYYY-MM-DD)")
	f.StringVar(&in.format, "format", "csv", "output format (csv, json)")
}

func (in *inputFlags) window(ticker string) (models.QueryFilter, error) {
	filter := models.QueryFilter{Ticker: ticker}
	for _, d := range []struct {
		raw string
		dst **time.Time
	}{{in.start, &filter.StartDate}, {in.end, &filter.EndDate}} {
		if d.raw == "" {
			continue
		}
		t, err := models.ParseDate(d.raw)
		if err != nil {
			return filter, err
		}
		*d.dst = &t
	}
	return filter, nil
}

func (in *inputFlags) load() ([]models.Trade, []models.PriceObservation, error) {
	trades, err := readFile(in.trades, csvio.ParseTrades)
	if err != nil {
		return nil, nil, err
	}
	prices, err := readFile(in.prices, csvio.ParsePrices)
	if err != nil {
		return nil, nil, err
	}
	return trades, prices, nil
}

func readFile[T any](name string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	out, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func writeRecords(w io.Writer, format string, records []models.PnLRecord, filter models.QueryFilter) error {
	var trimmed []models.PnLRecord
	for _, r := range records {
		if filter.Contains(r.AsOfDate) {
			trimmed = append(trimmed, r)
		}
	}

	switch format {
	case "csv":
		return csvio.WriteRecords(w, trimmed)
	case "json":
		if trimmed == nil {
			trimmed = []models.PnLRecord{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(trimmed)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

type historyCmd struct {
	inputFlags
	ticker string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "print the daily PnL series per ticker" }
func (*historyCmd) Usage() string {
	return `pnlctl history [-trades <file>] [-prices <file>] [-t <ticker>] [-s <start>] [-e <end>] [-format csv|json]

  Replays every trade with weighted average cost and values the open
  position at each day's close. Dates outside -s/-e are computed but not
  printed.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	c.inputFlags.register(f)
	f.StringVar(&c.ticker, "t", "", "only this ticker")
}

func (c *historyCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	filter, err := c.window(c.ticker)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	trades, prices, err := c.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	var records []models.PnLRecord
	if c.ticker != "" {
		var own []models.Trade
		for _, t := range trades {
			if t.Ticker == c.ticker {
				own = append(own, t)
			}
		}
		records, err = analytics.BuildSeries(c.ticker, own, prices)
	} else {
		var series map[string][]models.PnLRecord
		series, err = analytics.BuildAll(trades, prices)
		for _, ticker := range analytics.Tickers(series) {
			records = append(records, series[ticker]...)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if err := writeRecords(stdout, c.format, records, filter); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type portfolioCmd struct {
	inputFlags
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "print the aggregated PORTFOLIO series" }
func (*portfolioCmd) Usage() string {
	return `pnlctl portfolio [-trades <file>] [-prices <file>] [-s <start>] [-e <end>] [-format csv|json]

  Sums every ticker's PnL per date, carrying each ticker's last known
  values forward on dates it has no record.
`
}

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	c.inputFlags.register(f)
}

func (c *portfolioCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	filter, err := c.window("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	trades, prices, err := c.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	series, err := analytics.BuildAll(trades, prices)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if err := writeRecords(stdout, c.format, analytics.Aggregate(series), filter); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type maxProfitCmd struct {
	prices string
	ticker string
	format string
}

func (*maxProfitCmd) Name() string     { return "maxprofit" }
func (*maxProfitCmd) Synopsis() string { return "print the best long and short round trip per ticker" }
func (*maxProfitCmd) Usage() string {
	return `pnlctl maxprofit [-prices <file>] [-t <ticker>] [-format csv|json]
`
}

func (c *maxProfitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.prices, "prices", "prices.csv", "CSV of daily closes: date,ticker,close")
	f.StringVar(&c.ticker, "t", "", "only this ticker")
	f.StringVar(&c.format, "format", "csv", "output format (csv, json)")
}

func (c *maxProfitCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	prices, err := readFile(c.prices, csvio.ParsePrices)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if c.ticker != "" {
		var only []models.PriceObservation
		for _, p := range prices {
			if p.Ticker == c.ticker {
				only = append(only, p)
			}
		}
		prices = only
	}

	results, err := analytics.MaxProfitSummary(prices)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	switch c.format {
	case "csv":
		err = csvio.WriteMaxProfit(stdout, results)
	case "json":
		if results == nil {
			results = []models.MaxProfitResult{}
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(results)
	default:
		err = fmt.Errorf("unknown format %q", c.format)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
