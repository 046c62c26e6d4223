package domain

import (
	"fmt"
	"time"
)

// TimeDomain is the visible span on the chart's time axis. Start is never after End.
type TimeDomain struct {
	Start time.Time
	End   time.Time
}

// NewTimeDomain builds a domain from two instants in either order.
func NewTimeDomain(a, b time.Time) TimeDomain {
	if b.Before(a) {
		a, b = b, a
	}
	return TimeDomain{Start: a, End: b}
}

// IsZero reports whether the domain has never been set.
func (d TimeDomain) IsZero() bool {
	return d.Start.IsZero() && d.End.IsZero()
}

// Degenerate reports whether both edges are the same instant.
func (d TimeDomain) Degenerate() bool {
	return d.Start.Equal(d.End)
}

// Contains reports whether t lies inside the closed interval [Start, End].
func (d TimeDomain) Contains(t time.Time) bool {
	return !t.Before(d.Start) && !t.After(d.End)
}

// Equal compares both edges by instant.
func (d TimeDomain) Equal(other TimeDomain) bool {
	return d.Start.Equal(other.Start) && d.End.Equal(other.End)
}

func (d TimeDomain) String() string {
	return fmt.Sprintf("[%s, %s]", d.Start.Format(time.RFC3339), d.End.Format(time.RFC3339))
}

// View is what the render sink receives on every viewport or data change.
type View struct {
	Domain         TimeDomain
	Visible        []Candle // Candles covering Domain, padded by one on each side
	TrackingLatest bool     // Domain's right edge equals the latest candle date
	Indicators     []Series // Indicator series over the same dates as Visible
}
