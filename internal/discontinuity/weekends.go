package discontinuity

import (
	"math"
	"time"
)

const (
	day      = 24 * time.Hour
	week     = 7 * day
	workWeek = 5 * day
)

// SkipWeekends excludes Saturdays and Sundays from elapsed time.
//
// The tradeable timeline runs from Monday 00:00 to Saturday 00:00 each week, so
// Saturday 00:00 and the following Monday 00:00 are the same tradeable point.
// Weekdays and midnights are evaluated in the location of the instant passed in.
type SkipWeekends struct{}

// NewSkipWeekends returns the weekend-skipping provider.
func NewSkipWeekends() SkipWeekends {
	return SkipWeekends{}
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func dayFloor(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func addDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// saturdayCeil returns the first Saturday midnight at or after t.
func saturdayCeil(t time.Time) time.Time {
	floor := dayFloor(t)
	days := (int(time.Saturday) - int(floor.Weekday()) + 7) % 7
	candidate := addDays(floor, days)
	if candidate.Before(t) {
		candidate = addDays(candidate, 7)
	}
	return candidate
}

// mondayFloor returns the last Monday midnight at or before t.
func mondayFloor(t time.Time) time.Time {
	floor := dayFloor(t)
	days := (int(floor.Weekday()) - int(time.Monday) + 7) % 7
	return addDays(floor, -days)
}

// ClampDown maps any weekend instant to the end of the preceding Friday.
func (SkipWeekends) ClampDown(t time.Time) time.Time {
	if !isWeekend(t) {
		return t
	}
	if t.Weekday() == time.Sunday {
		return addDays(dayFloor(t), -1)
	}
	return dayFloor(t)
}

// ClampUp maps any weekend instant to the following Monday midnight.
func (SkipWeekends) ClampUp(t time.Time) time.Time {
	if !isWeekend(t) {
		return t
	}
	if t.Weekday() == time.Sunday {
		return addDays(dayFloor(t), 1)
	}
	return addDays(dayFloor(t), 2)
}

// Distance returns the weekday time between start and end.
func (s SkipWeekends) Distance(start, end time.Time) time.Duration {
	if end.Before(start) {
		return -s.Distance(end, start)
	}
	start = s.ClampUp(start)
	end = s.ClampDown(end)
	if end.Before(start) {
		// both inside the same weekend
		return 0
	}

	offsetStart := saturdayCeil(start)
	if end.Before(offsetStart) {
		return end.Sub(start)
	}
	added := offsetStart.Sub(start)

	offsetEnd := saturdayCeil(end)
	removed := offsetEnd.Sub(end)

	weeks := math.Round(float64(offsetEnd.Sub(offsetStart)) / float64(week))
	return time.Duration(weeks)*workWeek + added - removed
}

// Offset walks d of weekday time from start, jumping over weekends.
func (s SkipWeekends) Offset(start time.Time, d time.Duration) time.Time {
	date := s.ClampUp(start)
	remaining := d

	if remaining < 0 {
		startOfWeek := mondayFloor(date)
		remaining += date.Sub(startOfWeek)
		if remaining >= 0 {
			return date.Add(d)
		}

		// Saturday midnight before this week, then whole weeks back
		date = addDays(startOfWeek, -2)
		weeks := floorDiv(remaining, workWeek)
		date = addDays(date, int(weeks)*7)
		remaining -= time.Duration(weeks) * workWeek

		return addDays(date.Add(remaining), 2)
	}

	endOfWeek := saturdayCeil(date)
	remaining -= endOfWeek.Sub(date)
	if remaining < 0 {
		return date.Add(d)
	}

	// skip the weekend, then whole weeks forward
	date = addDays(endOfWeek, 2)
	weeks := floorDiv(remaining, workWeek)
	date = addDays(date, int(weeks)*7)
	remaining -= time.Duration(weeks) * workWeek

	return date.Add(remaining)
}

func floorDiv(a, b time.Duration) int64 {
	q := int64(a / b)
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
