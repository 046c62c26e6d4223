// Package zoom turns pan and zoom gestures into time domain changes.
package zoom

import (
	"maps"
	"slices"
	"sync"

	"github.com/vtruhin/StockFlux/internal/discontinuity"
	"github.com/vtruhin/StockFlux/internal/domain"
	"github.com/vtruhin/StockFlux/internal/viewport"
)

// State is the gesture lifecycle state.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	default:
		return "unknown"
	}
}

// Gesture is a cumulative transform relative to the bound reference scale.
// Scale 1 is a pan; any other scale is a zoom.
type Gesture struct {
	Scale      float64
	TranslateX float64
}

// IsPan reports whether the gesture only translates.
func (g Gesture) IsPan() bool {
	return g.Scale == 1
}

// Listener receives every accepted domain.
type Listener func(domain.TimeDomain)

// Config holds the initial controller settings.
type Config struct {
	Provider       discontinuity.Provider // nil means no discontinuities
	AllowPan       bool
	AllowZoom      bool
	TrackingLatest bool
}

// Controller is the Idle/Dragging gesture state machine.
// It is safe for use from multiple goroutines, though listeners are called
// with the controller's lock released on the calling goroutine.
type Controller struct {
	mu sync.Mutex

	provider  discontinuity.Provider
	reference viewport.Scale
	extent    domain.TimeDomain

	allowPan  bool
	allowZoom bool
	tracking  bool

	state     State
	transform Gesture
	last      domain.TimeDomain

	listeners map[int]Listener
	nextID    int
}

// New creates a controller in the Idle state with no bound scale.
func New(cfg Config) *Controller {
	p := cfg.Provider
	if p == nil {
		p = discontinuity.NewIdentity()
	}
	return &Controller{
		provider:  p,
		reference: viewport.NewScale(domain.TimeDomain{}, 0, p),
		allowPan:  cfg.AllowPan,
		allowZoom: cfg.AllowZoom,
		tracking:  cfg.TrackingLatest,
		transform: Gesture{Scale: 1},
		listeners: make(map[int]Listener),
	}
}

// Rebind sets the reference scale gestures are measured against and resets
// the transient transform. A gesture in progress continues from the new reference.
func (c *Controller) Rebind(d domain.TimeDomain, width float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reference = viewport.NewScale(d, width, c.provider)
	c.last = d
	c.resetLocked()
}

// SetProvider swaps the discontinuity model, e.g. after a product change.
func (c *Controller) SetProvider(p discontinuity.Provider) {
	if p == nil {
		p = discontinuity.NewIdentity()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = p
	c.reference.Provider = p
}

func (c *Controller) SetDataExtent(d domain.TimeDomain) {
	c.mu.Lock()
	c.extent = d
	c.mu.Unlock()
}

func (c *Controller) SetTrackingLatest(tracking bool) {
	c.mu.Lock()
	c.tracking = tracking
	c.mu.Unlock()
}

func (c *Controller) SetAllowPan(allow bool) {
	c.mu.Lock()
	c.allowPan = allow
	c.mu.Unlock()
}

func (c *Controller) SetAllowZoom(allow bool) {
	c.mu.Lock()
	c.allowZoom = allow
	c.mu.Unlock()
}

// State returns the current gesture state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transform returns the transient transform, identity when no gesture is applied.
func (c *Controller) Transform() Gesture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transform
}

// Begin starts a gesture.
func (c *Controller) Begin() {
	c.mu.Lock()
	c.state = Dragging
	c.mu.Unlock()
}

// End finishes a gesture and rebinds the reference scale to the last accepted domain.
func (c *Controller) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Dragging {
		return
	}
	c.state = Idle
	if !c.last.IsZero() {
		c.reference = c.reference.WithDomain(c.last)
	}
	c.resetLocked()
}

// Subscribe registers l for accepted domains and returns a function removing it.
func (c *Controller) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Update applies g and publishes the resulting domain to listeners.
// It returns false when the gesture was rejected; a rejected gesture resets
// the transient transform and publishes nothing.
func (c *Controller) Update(g Gesture) (domain.TimeDomain, bool) {
	c.mu.Lock()
	d, ok := c.updateLocked(g)
	var listeners []Listener
	if ok {
		c.last = d
		for _, id := range slices.Sorted(maps.Keys(c.listeners)) {
			listeners = append(listeners, c.listeners[id])
		}
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(d)
	}
	return d, ok
}

func (c *Controller) updateLocked(g Gesture) (domain.TimeDomain, bool) {
	c.state = Dragging

	ref := c.reference
	if c.extent.IsZero() || ref.Width <= 0 || ref.Domain.IsZero() || g.Scale <= 0 {
		c.resetLocked()
		return domain.TimeDomain{}, false
	}

	// pixel extent of the data under the reference scale
	minPx := ref.Map(c.extent.Start)
	maxPx := ref.Map(c.extent.End)
	fullExtent := minPx > 0 && maxPx < ref.Width

	tx := clamp(g.TranslateX, ref.Width-maxPx, -minPx)
	c.transform = Gesture{Scale: g.Scale, TranslateX: tx}

	panned := g.IsPan()
	if (panned && !c.allowPan) || (!panned && !c.allowZoom) {
		c.resetLocked()
		return domain.TimeDomain{}, false
	}

	var candidate domain.TimeDomain
	switch {
	case fullExtent:
		candidate = c.extent
	default:
		candidate = domain.NewTimeDomain(
			ref.Invert((0-tx)/g.Scale),
			ref.Invert((ref.Width-tx)/g.Scale),
		)
		if !panned && c.tracking {
			candidate = viewport.MoveToLatest(c.provider, candidate, c.extent, 1)
		}
	}

	candidate = viewport.ClampDomain(candidate, c.extent)
	if !candidate.Start.Before(candidate.End) {
		c.resetLocked()
		return domain.TimeDomain{}, false
	}
	return candidate, true
}

func (c *Controller) resetLocked() {
	c.transform = Gesture{Scale: 1}
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
