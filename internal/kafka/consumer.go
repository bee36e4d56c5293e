package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-analytics/internal/analytics"
	"github.com/trogers1052/portfolio-analytics/internal/models"
	"github.com/trogers1052/portfolio-analytics/internal/observability"
)

// Ingester stores trades and prices arriving from the stream
type Ingester interface {
	// IngestTrade stores the trade unless a trade with the same order id
	// and source already exists. It reports whether a row was written.
	IngestTrade(ctx context.Context, t *models.Trade) (bool, error)
	IngestPrice(ctx context.Context, p *models.PriceObservation) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// Consumer reads broker fills and daily closes from Kafka
type Consumer struct {
	reader   messageReader
	ingester Ingester
	log      *slog.Logger
	metrics  *observability.Metrics
}

// NewConsumer creates a new Kafka consumer for trade and price events
func NewConsumer(brokers []string, topic, groupID string, ingester Ingester, log *slog.Logger, metrics *observability.Metrics) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:   reader,
		ingester: ingester,
		log:      log,
		metrics:  metrics,
	}
}

// Start consumes messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("starting kafka consumer", slog.String("topic", c.reader.Config().Topic))

	for {
		select {
		case <-ctx.Done():
			c.log.Info("kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.log.Error("failed to read message", slog.Any("error", err))
				continue
			}

			outcome, err := c.processMessage(ctx, msg)
			if err != nil {
				c.log.Error("failed to process message",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
					slog.Any("error", err))
			}
			c.metrics.MessagesConsumed.WithLabelValues(outcome).Inc()
		}
	}
}

// failureOutcome separates rejected payloads from storage failures
func failureOutcome(err error) string {
	if analytics.IsValidationError(err) {
		return "invalid"
	}
	return "error"
}

// envelope peeks at the event type before decoding the payload
type envelope struct {
	EventType string `json:"event_type"`
}

// processMessage handles a single message and returns its outcome label
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) (string, error) {
	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return "error", fmt.Errorf("failed to unmarshal event: %w", err)
	}

	switch env.EventType {
	case models.EventTradeDetected:
		var event models.TradeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return "error", fmt.Errorf("failed to unmarshal trade event: %w", err)
		}
		trade, err := convertTradeEvent(event)
		if err != nil {
			return "error", fmt.Errorf("failed to convert trade event: %w", err)
		}
		inserted, err := c.ingester.IngestTrade(ctx, trade)
		if err != nil {
			return failureOutcome(err), fmt.Errorf("failed to ingest trade: %w", err)
		}
		if !inserted {
			c.log.Debug("trade already stored, skipping",
				slog.String("order_id", trade.OrderID), slog.String("source", trade.Source))
			return "duplicate", nil
		}
		c.log.Info("ingested trade",
			slog.String("ticker", trade.Ticker),
			slog.String("side", trade.Side.String()),
			slog.String("quantity", trade.Quantity.String()),
			slog.String("price", trade.Price.String()),
			slog.String("order_id", trade.OrderID))
		return "stored", nil

	case models.EventPriceUpdated:
		var event models.PriceEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return "error", fmt.Errorf("failed to unmarshal price event: %w", err)
		}
		price, err := convertPriceEvent(event)
		if err != nil {
			return "error", fmt.Errorf("failed to convert price event: %w", err)
		}
		if err := c.ingester.IngestPrice(ctx, price); err != nil {
			return failureOutcome(err), fmt.Errorf("failed to ingest price: %w", err)
		}
		return "stored", nil

	default:
		c.log.Debug("ignoring event type", slog.String("event_type", env.EventType))
		return "ignored", nil
	}
}

// convertTradeEvent maps a broker fill to a Trade dated by its execution day
func convertTradeEvent(event models.TradeEvent) (*models.Trade, error) {
	data := event.Data

	side, err := models.ParseSide(data.Side)
	if err != nil {
		return nil, err
	}

	quantity, err := decimal.NewFromString(data.Quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %s: %w", data.Quantity, err)
	}

	price, err := decimal.NewFromString(data.AveragePrice)
	if err != nil {
		return nil, fmt.Errorf("invalid price %s: %w", data.AveragePrice, err)
	}

	executedAt := event.Timestamp
	if data.ExecutedAt != nil && *data.ExecutedAt != "" {
		if t, err := time.Parse(time.RFC3339, *data.ExecutedAt); err == nil {
			executedAt = t
		} else if t, err := time.Parse("2006-01-02T15:04:05", *data.ExecutedAt); err == nil {
			executedAt = t
		}
	}
	if executedAt.IsZero() {
		executedAt = time.Now()
	}

	return &models.Trade{
		Ticker:    data.Symbol,
		TradeDate: models.NormalizeDate(executedAt.UTC()),
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		OrderID:   data.OrderID,
		Source:    event.Source,
	}, nil
}

func convertPriceEvent(event models.PriceEvent) (*models.PriceObservation, error) {
	date, err := models.ParseDate(event.Data.Date)
	if err != nil {
		return nil, err
	}

	closePrice, err := decimal.NewFromString(event.Data.Close)
	if err != nil {
		return nil, fmt.Errorf("invalid close %s: %w", event.Data.Close, err)
	}

	return &models.PriceObservation{
		Ticker:     event.Data.Symbol,
		Date:       date,
		ClosePrice: closePrice,
	}, nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
