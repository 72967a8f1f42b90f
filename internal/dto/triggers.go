package dto

import "time"

// TriggerTable is the signal generator's output for one symbol: the original
// price columns merged with the four 0/1 trigger columns and the derived
// position track. The first maxLookback rows carry all zeros.
type TriggerTable struct {
	Symbol     string
	PriceLabel string
	Dates      []time.Time
	Prices     map[string][]float64

	EntryLong  []int
	ExitLong   []int
	EntryShort []int
	ExitShort  []int
	Position   []Signal

	// StopLoss, when set for a row, is forwarded to the position sizer as the
	// candidate's stop. Optional.
	StopLoss []float64

	dateIdx map[string]int
}

// NewTriggerTable allocates a zeroed table over the given date axis.
func NewTriggerTable(symbol, priceLabel string, dates []time.Time) *TriggerTable {
	n := len(dates)
	t := &TriggerTable{
		Symbol:     symbol,
		PriceLabel: priceLabel,
		Dates:      dates,
		Prices:     make(map[string][]float64),
		EntryLong:  make([]int, n),
		ExitLong:   make([]int, n),
		EntryShort: make([]int, n),
		ExitShort:  make([]int, n),
		Position:   make([]Signal, n),
		dateIdx:    make(map[string]int, n),
	}
	for i, d := range dates {
		t.dateIdx[d.Format(DateLayout)] = i
	}
	return t
}

// IndexOf returns the row index for a date, or -1 when the table has no row on
// that date.
func (t *TriggerTable) IndexOf(date time.Time) int {
	i, ok := t.dateIdx[date.Format(DateLayout)]
	if !ok {
		return -1
	}
	return i
}

// PriceAt returns the price-label value at row i.
func (t *TriggerTable) PriceAt(i int) float64 {
	return t.Prices[t.PriceLabel][i]
}

// Len returns the number of rows.
func (t *TriggerTable) Len() int { return len(t.Dates) }
