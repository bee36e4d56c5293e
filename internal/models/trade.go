package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Trade side string values as stored and exchanged on the wire
const (
	TradeTypeBuy  = "BUY"
	TradeTypeSell = "SELL"
)

// Side is the direction of a trade execution
type Side int

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// ParseSide converts BUY/SELL (any case) into a Side
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case TradeTypeBuy:
		return SideBuy, nil
	case TradeTypeSell:
		return SideSell, nil
	default:
		return SideUnknown, fmt.Errorf("invalid trade side: %q", s)
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return TradeTypeBuy
	case SideSell:
		return TradeTypeSell
	default:
		return "UNKNOWN"
	}
}

// Sign returns +1 for buys and -1 for sells. An unknown side has sign 0.
func (s Side) Sign() int {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	default:
		return 0
	}
}

// Valid reports whether s is BUY or SELL
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	side, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// Trade is a single execution for one ticker. SequenceID orders trades
// that share a trade date.
type Trade struct {
	SequenceID int64           `json:"sequence_id"`
	Ticker     string          `json:"ticker"`
	TradeDate  time.Time       `json:"trade_date"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	OrderID    string          `json:"order_id,omitempty"`
	Source     string          `json:"source,omitempty"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
}

// SignedQuantity is +quantity for buys and -quantity for sells
func (t Trade) SignedQuantity() decimal.Decimal {
	if t.Side == SideSell {
		return t.Quantity.Neg()
	}
	return t.Quantity
}

// TradeEvent is the broker event published when an order fill is detected
type TradeEvent struct {
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      TradeEventData `json:"data"`
}

// TradeEventData carries the fill details. Numbers arrive as strings.
type TradeEventData struct {
	OrderID       string  `json:"order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Quantity      string  `json:"quantity"`
	AveragePrice  string  `json:"average_price"`
	TotalNotional string  `json:"total_notional,omitempty"`
	Fees          string  `json:"fees,omitempty"`
	State         string  `json:"state,omitempty"`
	ExecutedAt    *string `json:"executed_at,omitempty"`
}
