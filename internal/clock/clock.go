package clock

import "time"

// Clock supplies "now" in a configured location.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type system struct {
	loc *time.Location
}

// New returns a Clock backed by the platform clock, reporting times in loc.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return system{loc: loc}
}

func (s system) Now() time.Time           { return time.Now().In(s.loc) }
func (s system) Location() *time.Location { return s.loc }

// Frozen is a Clock pinned to a single instant. Tests move it with Set.
type Frozen struct {
	T time.Time
}

// Fixed returns a Frozen clock at t, reporting t's location.
func Fixed(t time.Time) *Frozen { return &Frozen{T: t} }

func (f *Frozen) Now() time.Time           { return f.T }
func (f *Frozen) Location() *time.Location { return f.T.Location() }
func (f *Frozen) Set(t time.Time)          { f.T = t }

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
