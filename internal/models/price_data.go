package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceObservation is the daily close for a ticker
type PriceObservation struct {
	Ticker     string          `json:"ticker"`
	Date       time.Time       `json:"date"`
	ClosePrice decimal.Decimal `json:"close"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at,omitempty"`
}

// PriceEvent is published by the market data collector for each daily close
type PriceEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      PriceEventData `json:"data"`
}

// PriceEventData carries one close price
type PriceEventData struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	Close  string `json:"close"`
}
