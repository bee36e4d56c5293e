// Package service loads trades and prices from storage, runs the PnL engine
// over them and keeps the result cache and event stream in step with writes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/trogers1052/portfolio-analytics/internal/analytics"
	"github.com/trogers1052/portfolio-analytics/internal/cache"
	"github.com/trogers1052/portfolio-analytics/internal/logger"
	"github.com/trogers1052/portfolio-analytics/internal/models"
	"github.com/trogers1052/portfolio-analytics/internal/observability"
)

// Store is the persistence the service needs. *database.DB satisfies it.
type Store interface {
	CreateTrade(t *models.Trade) (bool, error)
	CreateTradesBatch(trades []*models.Trade) (int64, error)
	TradeExistsByOrderID(orderID, source string) (bool, error)
	GetTrades(filter models.QueryFilter) ([]*models.Trade, error)
	DeleteTradesByTicker(ticker string) (int64, error)

	UpsertPrice(p *models.PriceObservation) error
	UpsertPricesBatch(prices []*models.PriceObservation) (int64, error)
	GetPrices(filter models.QueryFilter) ([]*models.PriceObservation, error)
	DeletePricesByTicker(ticker string) (int64, error)

	Ping(ctx context.Context) error
}

// Publisher emits data change events. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event models.DataEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.DataEvent) error { return nil }

const (
	kindHistory   = "history"
	kindPortfolio = "portfolio"
	kindMaxProfit = "max_profit"
)

// Service answers PnL queries and applies data changes
type Service struct {
	store     Store
	cache     cache.Cache
	publisher Publisher
	log       *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Service. A nil cache or publisher disables that concern.
func New(store Store, c cache.Cache, publisher Publisher, log *slog.Logger, metrics *observability.Metrics) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Service{
		store:     store,
		cache:     c,
		publisher: publisher,
		log:       log,
		metrics:   metrics,
	}
}

// Health checks the database connection
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// History returns PnL records for filter.Ticker, or for every ticker
// ordered by ticker then date. The date window only trims the output.
func (s *Service) History(ctx context.Context, filter models.QueryFilter) ([]models.PnLRecord, error) {
	var records []models.PnLRecord
	err := s.cached(ctx, kindHistory, cacheKey(filter), &records, func() error {
		trades, prices, err := s.load(models.QueryFilter{Ticker: filter.Ticker})
		if err != nil {
			return err
		}

		if filter.Ticker != "" {
			records, err = analytics.BuildSeries(filter.Ticker, trades, prices)
			if err != nil {
				return err
			}
		} else {
			series, failed := analytics.BuildEach(trades, prices)
			if err := s.skipFailed(ctx, failed, len(series)); err != nil {
				return err
			}
			for _, ticker := range analytics.Tickers(series) {
				records = append(records, series[ticker]...)
			}
		}
		records = trim(records, filter)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Portfolio returns the aggregated PORTFOLIO series
func (s *Service) Portfolio(ctx context.Context, filter models.QueryFilter) ([]models.PnLRecord, error) {
	filter.Ticker = ""

	var records []models.PnLRecord
	err := s.cached(ctx, kindPortfolio, cacheKey(filter), &records, func() error {
		trades, prices, err := s.load(models.QueryFilter{})
		if err != nil {
			return err
		}
		series, err := analytics.BuildAll(trades, prices)
		if err != nil {
			return err
		}
		records = trim(analytics.Aggregate(series), filter)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// MaxProfit returns the best long and short round trip per ticker
func (s *Service) MaxProfit(ctx context.Context, ticker string) ([]models.MaxProfitResult, error) {
	var results []models.MaxProfitResult
	err := s.cached(ctx, kindMaxProfit, cacheKey(models.QueryFilter{Ticker: ticker}), &results, func() error {
		stored, err := s.store.GetPrices(models.QueryFilter{Ticker: ticker})
		if err != nil {
			return fmt.Errorf("failed to load prices: %w", err)
		}
		results, err = analytics.MaxProfitSummary(derefPrices(stored))
		return err
	})
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.MaxProfitResult{}
	}
	return results, nil
}

// ListTrades returns stored trades matching the filter
func (s *Service) ListTrades(_ context.Context, filter models.QueryFilter) ([]*models.Trade, error) {
	trades, err := s.store.GetTrades(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// ListPrices returns stored closes matching the filter
func (s *Service) ListPrices(_ context.Context, filter models.QueryFilter) ([]*models.PriceObservation, error) {
	prices, err := s.store.GetPrices(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	return prices, nil
}

// UploadTrades stores a batch of trades in file order
func (s *Service) UploadTrades(ctx context.Context, trades []models.Trade) (int64, error) {
	rows := make([]*models.Trade, len(trades))
	for i := range trades {
		t := trades[i]
		t.SequenceID = 0
		rows[i] = &t
	}

	n, err := s.store.CreateTradesBatch(rows)
	if err != nil {
		return 0, fmt.Errorf("failed to store trades: %w", err)
	}

	s.changed(ctx, models.EventTradesUploaded, countTrades(rows))
	s.log.Info("uploaded trades", append(logger.Attrs(ctx), slog.Int64("inserted", n))...)
	return n, nil
}

// UploadPrices stores a batch of closes. Later rows for the same ticker
// and date win.
func (s *Service) UploadPrices(ctx context.Context, prices []models.PriceObservation) (int64, error) {
	rows := make([]*models.PriceObservation, len(prices))
	for i := range prices {
		p := prices[i]
		rows[i] = &p
	}

	n, err := s.store.UpsertPricesBatch(rows)
	if err != nil {
		return 0, fmt.Errorf("failed to store prices: %w", err)
	}

	counts := make(map[string]int64)
	for _, p := range rows {
		counts[p.Ticker]++
	}
	s.changed(ctx, models.EventPricesUploaded, counts)
	s.log.Info("uploaded prices", append(logger.Attrs(ctx), slog.Int64("upserted", n))...)
	return n, nil
}

// DeleteTrades removes every trade for a ticker
func (s *Service) DeleteTrades(ctx context.Context, ticker string) (int64, error) {
	n, err := s.store.DeleteTradesByTicker(ticker)
	if err != nil {
		return 0, fmt.Errorf("failed to delete trades: %w", err)
	}
	s.changed(ctx, models.EventTradesDeleted, map[string]int64{ticker: n})
	return n, nil
}

// DeletePrices removes every close for a ticker
func (s *Service) DeletePrices(ctx context.Context, ticker string) (int64, error) {
	n, err := s.store.DeletePricesByTicker(ticker)
	if err != nil {
		return 0, fmt.Errorf("failed to delete prices: %w", err)
	}
	s.changed(ctx, models.EventPricesDeleted, map[string]int64{ticker: n})
	return n, nil
}

// IngestTrade stores a streamed trade once per order id and source
func (s *Service) IngestTrade(ctx context.Context, t *models.Trade) (bool, error) {
	if err := analytics.ValidateTrade(*t); err != nil {
		return false, err
	}
	if t.OrderID != "" {
		exists, err := s.store.TradeExistsByOrderID(t.OrderID, t.Source)
		if err != nil {
			return false, fmt.Errorf("failed to check for duplicate trade: %w", err)
		}
		if exists {
			return false, nil
		}
	}

	inserted, err := s.store.CreateTrade(t)
	if err != nil {
		return false, err
	}
	if inserted {
		s.changed(ctx, models.EventTradeIngested, map[string]int64{t.Ticker: 1})
	}
	return inserted, nil
}

// IngestPrice upserts a streamed close
func (s *Service) IngestPrice(ctx context.Context, p *models.PriceObservation) error {
	if !p.ClosePrice.IsPositive() {
		return &analytics.InvalidPriceError{Ticker: p.Ticker, Date: p.Date, Reason: "close price must be positive"}
	}
	if err := s.store.UpsertPrice(p); err != nil {
		return err
	}
	s.changed(ctx, models.EventPricesUploaded, map[string]int64{p.Ticker: 1})
	return nil
}

// load reads trades and prices and converts them to engine values
func (s *Service) load(filter models.QueryFilter) ([]models.Trade, []models.PriceObservation, error) {
	trades, err := s.store.GetTrades(filter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load trades: %w", err)
	}
	prices, err := s.store.GetPrices(filter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load prices: %w", err)
	}
	return derefTrades(trades), derefPrices(prices), nil
}

// cached serves dest from the cache or runs compute and stores its result.
// Cache failures are logged and never fail the request.
// skipFailed logs tickers whose history could not be built. It returns
// the first failure only when no ticker succeeded.
func (s *Service) skipFailed(ctx context.Context, failed map[string]error, built int) error {
	if len(failed) == 0 {
		return nil
	}
	tickers := make([]string, 0, len(failed))
	for ticker := range failed {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	if built == 0 {
		return failed[tickers[0]]
	}

	for _, ticker := range tickers {
		s.metrics.ValidationFailures.WithLabelValues(kindHistory).Inc()
		s.log.Warn("skipping ticker with invalid data", append(logger.Attrs(ctx),
			slog.String("ticker", ticker), slog.Any("error", failed[ticker]))...)
	}
	return nil
}

func (s *Service) cached(ctx context.Context, kind, key string, dest any, compute func() error) error {
	// the result is stored under the version read here, so a write that
	// lands during compute leaves it orphaned
	version, found, err := s.cache.Get(ctx, kind, key, dest)
	cacheable := err == nil
	if err != nil {
		s.log.Warn("cache read failed", append(logger.Attrs(ctx), slog.String("kind", kind), slog.Any("error", err))...)
	}
	if found {
		s.metrics.CacheHits.Inc()
		return nil
	}
	s.metrics.CacheMisses.Inc()

	start := time.Now()
	s.metrics.Computations.WithLabelValues(kind).Inc()
	err = compute()
	s.metrics.ComputationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		if analytics.IsValidationError(err) {
			s.metrics.ValidationFailures.WithLabelValues(kind).Inc()
		}
		return err
	}

	if records, ok := dest.(*[]models.PnLRecord); ok {
		s.metrics.RecordsProduced.Add(float64(len(*records)))
	}

	if !cacheable {
		return nil
	}
	if err := s.cache.Set(ctx, version, kind, key, dest); err != nil {
		s.log.Warn("cache write failed", append(logger.Attrs(ctx), slog.String("kind", kind), slog.Any("error", err))...)
	}
	return nil
}

// changed invalidates cached results and publishes one event per ticker.
// Publish failures are logged only.
func (s *Service) changed(ctx context.Context, eventType string, counts map[string]int64) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("cache invalidation failed", append(logger.Attrs(ctx), slog.Any("error", err))...)
	}

	tickers := make([]string, 0, len(counts))
	for ticker := range counts {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	now := time.Now().UTC()
	for _, ticker := range tickers {
		event := models.DataEvent{EventType: eventType, Ticker: ticker, Count: counts[ticker], Timestamp: now}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.log.Error("failed to publish event",
				append(logger.Attrs(ctx), slog.String("event_type", eventType), slog.String("ticker", ticker), slog.Any("error", err))...)
			continue
		}
		s.metrics.EventsPublished.WithLabelValues(eventType).Inc()
	}
}

func trim(records []models.PnLRecord, filter models.QueryFilter) []models.PnLRecord {
	if filter.StartDate == nil && filter.EndDate == nil {
		return records
	}
	out := make([]models.PnLRecord, 0, len(records))
	for _, r := range records {
		if filter.Contains(r.AsOfDate) {
			out = append(out, r)
		}
	}
	return out
}

func cacheKey(filter models.QueryFilter) string {
	ticker := filter.Ticker
	if ticker == "" {
		ticker = "*"
	}
	return fmt.Sprintf("%s:%s:%s", ticker, dateKey(filter.StartDate), dateKey(filter.EndDate))
}

func dateKey(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(models.DateLayout)
}

func countTrades(trades []*models.Trade) map[string]int64 {
	counts := make(map[string]int64)
	for _, t := range trades {
		counts[t.Ticker]++
	}
	return counts
}

func derefTrades(in []*models.Trade) []models.Trade {
	out := make([]models.Trade, len(in))
	for i, t := range in {
		out[i] = *t
	}
	return out
}

func derefPrices(in []*models.PriceObservation) []models.PriceObservation {
	out := make([]models.PriceObservation, len(in))
	for i, p := range in {
		out[i] = *p
	}
	return out
}
