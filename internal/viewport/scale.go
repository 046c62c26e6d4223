package viewport

import (
	"math"
	"time"

	"github.com/vtruhin/StockFlux/internal/discontinuity"
	"github.com/vtruhin/StockFlux/internal/domain"
)

// Scale maps instants in Domain onto pixels [0, Width] linearly in tradeable time.
type Scale struct {
	Domain   domain.TimeDomain
	Width    float64
	Provider discontinuity.Provider
}

// NewScale builds a scale; a nil provider means no discontinuities.
func NewScale(d domain.TimeDomain, width float64, p discontinuity.Provider) Scale {
	if p == nil {
		p = discontinuity.NewIdentity()
	}
	return Scale{Domain: d, Width: width, Provider: p}
}

func (s Scale) span() time.Duration {
	return s.Provider.Distance(s.Domain.Start, s.Domain.End)
}

// Map returns the pixel position of t. Instants outside the domain map outside [0, Width].
func (s Scale) Map(t time.Time) float64 {
	span := s.span()
	if span == 0 {
		return 0
	}
	return s.Width * float64(s.Provider.Distance(s.Domain.Start, t)) / float64(span)
}

// Invert returns the instant at pixel px.
func (s Scale) Invert(px float64) time.Time {
	if s.Width == 0 {
		return s.Domain.Start
	}
	d := time.Duration(math.Round(px / s.Width * float64(s.span())))
	return s.Provider.Offset(s.Domain.Start, d)
}

// WithDomain returns a copy of s over d.
func (s Scale) WithDomain(d domain.TimeDomain) Scale {
	s.Domain = d
	return s
}
