// Package viewport decides which part of a candle sequence is visible.
//
// All widths are measured with a discontinuity.Provider, so a week of daily
// equity candles and a week of crypto candles occupy the width their tradeable
// time deserves.
package viewport

import (
	"slices"
	"sort"
	"time"

	"github.com/vtruhin/StockFlux/internal/discontinuity"
	"github.com/vtruhin/StockFlux/internal/domain"
)

// Extent returns the date range covered by candles, or false for an empty slice.
func Extent(candles []domain.Candle) (domain.TimeDomain, bool) {
	if len(candles) == 0 {
		return domain.TimeDomain{}, false
	}
	lo, hi := candles[0].Date, candles[0].Date
	for _, c := range candles[1:] {
		if c.Date.Before(lo) {
			lo = c.Date
		}
		if c.Date.After(hi) {
			hi = c.Date
		}
	}
	return domain.TimeDomain{Start: lo, End: hi}, true
}

func sortedByDate(candles []domain.Candle) []domain.Candle {
	if slices.IsSortedFunc(candles, domain.CompareByDate) {
		return candles
	}
	sorted := slices.Clone(candles)
	slices.SortStableFunc(sorted, domain.CompareByDate)
	return sorted
}

// FilterInRange returns the contiguous run of candles covering d, padded by one
// candle on each side so edge extents can be interpolated. Unsorted input is
// sorted (stably) into a copy first; sorted input is sliced without copying.
func FilterInRange(d domain.TimeDomain, candles []domain.Candle) []domain.Candle {
	data := sortedByDate(candles)

	left := sort.Search(len(data), func(i int) bool {
		return !data[i].Date.Before(d.Start)
	})
	right := sort.Search(len(data), func(i int) bool {
		return data[i].Date.After(d.End)
	})

	left = max(0, left-1)
	right = min(len(data), right+1)
	if left >= right {
		return nil
	}
	return data[left:right]
}

// CenterOnDate recenters d on center while keeping its tradeable width.
// A center outside the data extent, or a domain at least as wide as the data,
// yields the full extent. The centered domain is shifted back inside the extent
// when it would overrun either end.
func CenterOnDate(p discontinuity.Provider, d domain.TimeDomain, candles []domain.Candle, center time.Time) domain.TimeDomain {
	extent, ok := Extent(candles)
	if !ok {
		return d
	}
	if center.Before(extent.Start) || center.After(extent.End) {
		return extent
	}

	center = p.ClampDown(center)
	width := p.Distance(d.Start, d.End)
	if width >= p.Distance(extent.Start, extent.End) {
		return extent
	}

	start := p.Offset(center, -width/2)
	end := p.Offset(center, width-width/2)

	var shift time.Duration
	if end.After(extent.End) {
		shift = -p.Distance(extent.End, end)
	} else if start.Before(extent.Start) {
		shift = p.Distance(start, extent.Start)
	}
	if shift != 0 {
		start, end = p.Offset(start, shift), p.Offset(end, shift)
	}
	return ClampDomain(domain.TimeDomain{Start: start, End: end}, extent)
}

// ClampDomain limits each edge of d to extent. An end clamped before the start
// collapses onto it, so callers can detect the degenerate result.
func ClampDomain(d, extent domain.TimeDomain) domain.TimeDomain {
	start, end := d.Start, d.End
	if start.Before(extent.Start) {
		start = extent.Start
	}
	if end.After(extent.End) {
		end = extent.End
	}
	if end.Before(start) {
		end = start
	}
	return domain.TimeDomain{Start: start, End: end}
}

// MoveToLatest returns a domain ending at the latest data instant whose tradeable
// width is ratio times the width of view, never wider than data.
func MoveToLatest(p discontinuity.Provider, view, data domain.TimeDomain, ratio float64) domain.TimeDomain {
	dataWidth := p.Distance(data.Start, data.End)
	scaled := time.Duration(ratio * float64(p.Distance(view.Start, view.End)))
	if scaled >= dataWidth {
		return data
	}
	return domain.TimeDomain{Start: p.Offset(data.End, -scaled), End: data.End}
}

// TrackingLatest reports whether the right edge of d is exactly the newest candle date.
func TrackingLatest(d domain.TimeDomain, candles []domain.Candle) bool {
	extent, ok := Extent(candles)
	if !ok {
		return false
	}
	return d.End.Equal(extent.End)
}

// Engine binds the viewport functions to one product's discontinuity provider.
type Engine struct {
	provider discontinuity.Provider
}

// NewEngine creates an engine; a nil provider means no discontinuities.
func NewEngine(p discontinuity.Provider) *Engine {
	if p == nil {
		p = discontinuity.NewIdentity()
	}
	return &Engine{provider: p}
}

// Provider returns the discontinuity provider the engine measures with.
func (e *Engine) Provider() discontinuity.Provider {
	return e.provider
}

// View computes what a render sink needs for domain d.
func (e *Engine) View(d domain.TimeDomain, candles []domain.Candle) domain.View {
	return domain.View{
		Domain:         d,
		Visible:        FilterInRange(d, candles),
		TrackingLatest: TrackingLatest(d, candles),
	}
}

func (e *Engine) CenterOnDate(d domain.TimeDomain, candles []domain.Candle, center time.Time) domain.TimeDomain {
	return CenterOnDate(e.provider, d, candles, center)
}

func (e *Engine) MoveToLatest(view, data domain.TimeDomain, ratio float64) domain.TimeDomain {
	return MoveToLatest(e.provider, view, data, ratio)
}

// ResetToLatest shows the newest ratio of the data. Returns false for no data.
func (e *Engine) ResetToLatest(candles []domain.Candle, ratio float64) (domain.TimeDomain, bool) {
	extent, ok := Extent(candles)
	if !ok {
		return domain.TimeDomain{}, false
	}
	return MoveToLatest(e.provider, extent, extent, ratio), true
}

// Follow advances d to the latest data when it was tracking before the data changed.
func (e *Engine) Follow(d domain.TimeDomain, wasTracking bool, candles []domain.Candle) domain.TimeDomain {
	if !wasTracking {
		return d
	}
	extent, ok := Extent(candles)
	if !ok {
		return d
	}
	return MoveToLatest(e.provider, d, extent, 1)
}
