package domain

import "time"

// SeriesPoint is one indicator sample, aligned with the candle dated Date.
type SeriesPoint struct {
	Date   time.Time
	Values []float64 // One value per Series.Fields entry
}

// Series is an indicator computed over a candle sequence. Points start where
// the indicator has enough history, so it may be shorter than the candles.
type Series struct {
	Name   string
	Fields []string
	Points []SeriesPoint
}

// Between returns a copy of s holding only points dated within [start, end].
func (s Series) Between(start, end time.Time) Series {
	out := Series{Name: s.Name, Fields: s.Fields}
	for _, p := range s.Points {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out
}
