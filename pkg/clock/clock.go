package clock

import "time"

// Clock abstracts wall time so date-sensitive calculations can be tested
// against a fixed instant.
type Clock interface {
	// Now returns the current instant.
	Now() time.Time
	// Today returns the current UTC date truncated to midnight. DATE
	// columns scan back at UTC midnight, so comparisons must stay in UTC
	// regardless of the host zone.
	Today() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time   { return time.Now() }
func (systemClock) Today() time.Time { return Midnight(time.Now().UTC()) }

// System returns a Clock backed by time.Now.
func System() Clock {
	return systemClock{}
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time   { return c.t }
func (c fixedClock) Today() time.Time { return Midnight(c.t) }

// Fixed returns a Clock frozen at t.
func Fixed(t time.Time) Clock {
	return fixedClock{t: t}
}

// Midnight truncates t to the start of its day, keeping the location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of whole days from a to b. The result is
// negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(Midnight(b).Sub(Midnight(a)).Hours() / 24)
}
