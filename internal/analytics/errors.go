package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/portfolio-analytics/internal/models"
)

// Sentinel errors matched with errors.Is
var (
	// ErrOrdering is returned when trades are not strictly ordered by
	// (trade_date, sequence_id).
	ErrOrdering = errors.New("trades not ordered by date and sequence")

	// ErrInvalidTrade is returned for trades that cannot enter a position.
	ErrInvalidTrade = errors.New("invalid trade")

	// ErrInvalidPrice is returned for non-positive close prices.
	ErrInvalidPrice = errors.New("invalid price observation")
)

// OrderingError reports the first trade found out of order
type OrderingError struct {
	Ticker   string
	Index    int
	Previous models.Trade
	Current  models.Trade
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("%s: trade %d (%s seq %d) does not follow %s seq %d",
		e.Ticker, e.Index,
		e.Current.TradeDate.Format(models.DateLayout), e.Current.SequenceID,
		e.Previous.TradeDate.Format(models.DateLayout), e.Previous.SequenceID)
}

func (e *OrderingError) Unwrap() error { return ErrOrdering }

// InvalidTradeError names the trade that failed validation
type InvalidTradeError struct {
	Trade  models.Trade
	Reason string
}

func (e *InvalidTradeError) Error() string {
	return fmt.Sprintf("invalid trade %s seq %d on %s: %s",
		e.Trade.Ticker, e.Trade.SequenceID, e.Trade.TradeDate.Format(models.DateLayout), e.Reason)
}

func (e *InvalidTradeError) Unwrap() error { return ErrInvalidTrade }

// InvalidPriceError names the observation that failed validation
type InvalidPriceError struct {
	Ticker string
	Date   time.Time
	Reason string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %s on %s: %s", e.Ticker, e.Date.Format(models.DateLayout), e.Reason)
}

func (e *InvalidPriceError) Unwrap() error { return ErrInvalidPrice }

// IsValidationError reports whether err comes from rejecting engine input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrOrdering) || errors.Is(err, ErrInvalidTrade) || errors.Is(err, ErrInvalidPrice)
}
