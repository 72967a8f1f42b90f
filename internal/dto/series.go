package dto

import (
	"fmt"
	"time"
)

// Bar is one dated OHLCV record.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceSeries is an immutable, date-sorted tabular time series for one symbol.
// Zero-valued numeric entries are treated as missing and forward-filled on
// construction. Columns are stored as contiguous float slices keyed by name.
type PriceSeries struct {
	Symbol  string
	Dates   []time.Time
	columns map[string][]float64
	dateIdx map[string]int
}

// NewPriceSeries builds a series from raw bars. Dates must be strictly
// increasing; duplicates or regressions are rejected.
func NewPriceSeries(symbol string, bars []Bar) (*PriceSeries, error) {
	n := len(bars)
	s := &PriceSeries{
		Symbol:  symbol,
		Dates:   make([]time.Time, 0, n),
		columns: make(map[string][]float64, 5),
		dateIdx: make(map[string]int, n),
	}
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closeCol := make([]float64, n)
	volume := make([]float64, n)

	var prev time.Time
	for i, b := range bars {
		if i > 0 && !b.Date.After(prev) {
			return nil, &ValidationError{Reason: fmt.Sprintf("dates not strictly increasing at %s (symbol %s)", b.Date.Format(DateLayout), symbol)}
		}
		prev = b.Date
		s.Dates = append(s.Dates, b.Date)
		s.dateIdx[b.Date.Format(DateLayout)] = i
		open[i] = b.Open
		high[i] = b.High
		low[i] = b.Low
		closeCol[i] = b.Close
		volume[i] = b.Volume
	}

	forwardFill(open)
	forwardFill(high)
	forwardFill(low)
	forwardFill(closeCol)
	forwardFill(volume)

	s.columns[ColumnOpen] = open
	s.columns[ColumnHigh] = high
	s.columns[ColumnLow] = low
	s.columns[ColumnClose] = closeCol
	s.columns[ColumnVolume] = volume
	return s, nil
}

// DateLayout is the ISO day format used for date keys and trade ids.
const DateLayout = "2006-01-02"

// DerivedColumn requests an oscillator or volume series computed from the
// base columns before signal generation. Rules reference the result by name.
type DerivedColumn struct {
	Name   string `json:"name" validate:"required"`
	Kind   string `json:"kind" validate:"required"`
	Source string `json:"source,omitempty"`
	Window int    `json:"window,omitempty"`
	Smooth int    `json:"smooth,omitempty"`
	Fast   int    `json:"fast,omitempty"`
	Slow   int    `json:"slow,omitempty"`
}

// Derived column kinds.
const (
	DerivedROC      = "roc"
	DerivedSMAOfROC = "sma_of_roc"
	DerivedRatioMA  = "ratio_ma_roc"
	DerivedOBV      = "obv"
)

// forwardFill replaces zero entries with the last non-zero value seen. Leading
// zeros stay as-is; there is nothing to carry yet.
func forwardFill(xs []float64) {
	last := 0.0
	for i, v := range xs {
		if v == 0 && last != 0 {
			xs[i] = last
		} else if v != 0 {
			last = v
		}
	}
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int { return len(s.Dates) }

// Column returns the named column, or an error naming the missing column.
func (s *PriceSeries) Column(name string) ([]float64, error) {
	col, ok := s.columns[name]
	if !ok {
		return nil, &MissingDataError{Symbol: s.Symbol, Field: name}
	}
	return col, nil
}

// SetColumn attaches a derived column (e.g. on-balance volume or an
// oscillator) so rules can reference it by name. The column length must match
// the date axis.
func (s *PriceSeries) SetColumn(name string, values []float64) error {
	if len(values) != len(s.Dates) {
		return &LengthMismatchError{ID: name, Want: len(s.Dates), Got: len(values)}
	}
	s.columns[name] = values
	return nil
}

// Clone returns a series sharing the base column slices but owning its column
// map, so derived columns attached per request never leak into a cached
// series.
func (s *PriceSeries) Clone() *PriceSeries {
	c := &PriceSeries{
		Symbol:  s.Symbol,
		Dates:   s.Dates,
		columns: make(map[string][]float64, len(s.columns)),
		dateIdx: s.dateIdx,
	}
	for name, col := range s.columns {
		c.columns[name] = col
	}
	return c
}

// ColumnNames lists the stored columns, base and derived.
func (s *PriceSeries) ColumnNames() []string {
	names := make([]string, 0, len(s.columns))
	for name := range s.columns {
		names = append(names, name)
	}
	return names
}

// IndexOf returns the row index for a date, or -1 when the symbol has no bar
// on that date.
func (s *PriceSeries) IndexOf(date time.Time) int {
	i, ok := s.dateIdx[date.Format(DateLayout)]
	if !ok {
		return -1
	}
	return i
}
