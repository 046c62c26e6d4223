package domain

import "time"

// Period is a selectable candle granularity.
type Period struct {
	Name    string // Display name (e.g., "1 Hr")
	Seconds int    // Bucket duration in seconds
}

// Duration returns the bucket length of the period.
func (p Period) Duration() time.Duration {
	return time.Duration(p.Seconds) * time.Second
}

// Standard periods offered by the chart.
var (
	PeriodWeek1   = Period{Name: "Weekly", Seconds: 60 * 60 * 24 * 7}
	PeriodDay1    = Period{Name: "Daily", Seconds: 60 * 60 * 24}
	PeriodHour1   = Period{Name: "1 Hr", Seconds: 60 * 60}
	PeriodMinute5 = Period{Name: "5 Min", Seconds: 60 * 5}
	PeriodMinute1 = Period{Name: "1 Min", Seconds: 60}
)

// Product is a tradeable instrument offered by a data source.
type Product struct {
	ID      string   // Identifier understood by the source's feeds
	Name    string   // Display name
	Source  string   // Name of the source that serves this product
	Periods []Period // Periods supported for this product; the first one is the default
}

// DefaultPeriod returns the first supported period, or false if the product has none.
func (p Product) DefaultPeriod() (Period, bool) {
	if len(p.Periods) == 0 {
		return Period{}, false
	}
	return p.Periods[0], true
}

// SupportsPeriod reports whether seconds is one of the product's periods.
func (p Product) SupportsPeriod(seconds int) bool {
	for _, period := range p.Periods {
		if period.Seconds == seconds {
			return true
		}
	}
	return false
}

// CloseInfo describes why a streaming connection ended.
type CloseInfo struct {
	Code   int    // Transport close code when available (e.g., WebSocket close code)
	Reason string // Human readable reason
	Clean  bool   // Whether the connection was closed on request
}
