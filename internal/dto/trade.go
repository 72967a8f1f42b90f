package dto

import (
	"fmt"
	"strings"
	"time"
)

// Trade is one round trip (or a still-open entry) in the backtest ledger.
// Created on buy; the exit fields are filled once on close and the record is
// never mutated afterwards.
type Trade struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       TradeSide `json:"side"`
	Shares     int64     `json:"shares"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	EntryFee   float64   `json:"entry_fee"`
	ExitDate   time.Time `json:"exit_date,omitempty"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	ExitFee    float64   `json:"exit_fee,omitempty"`
	Gross      float64   `json:"gross"`
}

// TradeID builds the ledger key "YYYY-MM-DD_<SYMBOL>_<long|short>".
func TradeID(date time.Time, symbol string, side TradeSide) string {
	return fmt.Sprintf("%s_%s_%s", date.Format(DateLayout), strings.ToUpper(symbol), side)
}

// Open reports whether the trade still lacks an exit.
func (t *Trade) Open() bool { return t.ExitDate.IsZero() }
