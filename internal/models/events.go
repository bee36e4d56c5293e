package models

import "time"

// Data change event types published after writes
const (
	EventTradesUploaded = "TRADES_UPLOADED"
	EventTradesDeleted  = "TRADES_DELETED"
	EventPricesUploaded = "PRICES_UPLOADED"
	EventPricesDeleted  = "PRICES_DELETED"
	EventTradeIngested  = "TRADE_INGESTED"
)

// Inbound event types
const (
	EventTradeDetected = "TRADE_DETECTED"
	EventPriceUpdated  = "PRICE_UPDATED"
)

// DataEvent announces that stored trades or prices changed, so downstream
// consumers can refresh their PnL views
type DataEvent struct {
	EventType string    `json:"event_type"`
	Ticker    string    `json:"ticker,omitempty"`
	Count     int64     `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}
