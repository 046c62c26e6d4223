package domain

import "time"

// Trade represents a single executed trade received from a streaming feed.
type Trade struct {
	Time    time.Time // Execution time reported by the exchange
	Price   float64   // Execution price
	Size    float64   // Executed quantity
	Product string    // Product identifier (e.g., "BTC-USD", "ETHUSDT")
}
