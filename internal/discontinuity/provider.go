// Package discontinuity models time axes that skip non-trading periods.
//
// A Provider answers two questions: how much tradeable time lies between two
// instants, and which instant lies a given amount of tradeable time away from
// another. Every component that maps pixels to time for one product must share
// the same Provider, otherwise pixel positions drift between views.
package discontinuity

import "time"

// Provider is a stateless calendar-discontinuity model.
type Provider interface {
	// Distance returns the tradeable time between start and end.
	// The result is negative when end is before start.
	Distance(start, end time.Time) time.Duration

	// Offset returns the instant that lies d of tradeable time from start.
	// Negative d walks backwards.
	Offset(start time.Time, d time.Duration) time.Time

	// ClampUp moves an instant inside a discontinuity forward to its end.
	ClampUp(t time.Time) time.Time

	// ClampDown moves an instant inside a discontinuity back to its start.
	ClampDown(t time.Time) time.Time
}

// Identity is a Provider without discontinuities, used for markets that never close.
type Identity struct{}

// NewIdentity returns the identity provider.
func NewIdentity() Identity {
	return Identity{}
}

func (Identity) Distance(start, end time.Time) time.Duration {
	return end.Sub(start)
}

func (Identity) Offset(start time.Time, d time.Duration) time.Time {
	return start.Add(d)
}

func (Identity) ClampUp(t time.Time) time.Time {
	return t
}

func (Identity) ClampDown(t time.Time) time.Time {
	return t
}
