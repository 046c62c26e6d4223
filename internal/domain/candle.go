package domain

import "time"

// Candle represents a single OHLCV bucket on the chart.
// Candles are values; the aggregator replaces them rather than mutating shared copies.
type Candle struct {
	Date   time.Time // Start of the bucket, aligned to the granularity boundary
	Open   float64   // First price in the bucket
	High   float64   // Highest price in the bucket
	Low    float64   // Lowest price in the bucket
	Close  float64   // Last price in the bucket
	Volume float64   // Traded quantity in the bucket
}

// Before reports whether c starts earlier than other.
func (c Candle) Before(other Candle) bool {
	return c.Date.Before(other.Date)
}

// CompareByDate orders candles ascending by date. Suitable for slices.SortStableFunc.
func CompareByDate(a, b Candle) int {
	return a.Date.Compare(b.Date)
}
