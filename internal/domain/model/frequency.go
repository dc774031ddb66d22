package model

import (
	"fmt"
	"strings"
	"time"
)

// Cadence is how often batched communications go out.
type Cadence uint8

// Known cadences. The zero value is CadenceNever.
const (
	CadenceNever Cadence = iota
	CadenceImmediate
	CadenceHourly
	CadenceDaily
	CadenceWeekly
)

var cadenceNames = map[Cadence]string{
	CadenceNever:     "never",
	CadenceImmediate: "immediate",
	CadenceHourly:    "hourly",
	CadenceDaily:     "daily",
	CadenceWeekly:    "weekly",
}

func (c Cadence) String() string {
	if s, ok := cadenceNames[c]; ok {
		return s
	}
	return fmt.Sprintf("cadence(%d)", uint8(c))
}

// ParseCadence parses a cadence name, case-insensitively.
func ParseCadence(s string) (Cadence, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range cadenceNames {
		if name == s {
			return c, nil
		}
	}
	return CadenceNever, fmt.Errorf("%w: unknown cadence %q", ErrInvalidFrequency, s)
}

// Frequency is a delivery preference attached to a Person (override) or a
// Community (default).
type Frequency struct {
	Cadence Cadence
	// Day only applies to CadenceWeekly. Nil defers to the next scope.
	Day *time.Weekday
}

// Never returns the frequency that disables delivery.
func Never() Frequency { return Frequency{Cadence: CadenceNever} }

// Immediate returns the per-event frequency.
func Immediate() Frequency { return Frequency{Cadence: CadenceImmediate} }

// Hourly returns the hourly frequency.
func Hourly() Frequency { return Frequency{Cadence: CadenceHourly} }

// Daily returns the daily frequency.
func Daily() Frequency { return Frequency{Cadence: CadenceDaily} }

// Weekly returns a weekly frequency firing on day.
func Weekly(day time.Weekday) Frequency {
	d := day
	return Frequency{Cadence: CadenceWeekly, Day: &d}
}

// WeeklyUnset returns a weekly frequency that inherits its day.
func WeeklyUnset() Frequency { return Frequency{Cadence: CadenceWeekly} }

// Matches reports whether f has the same cadence as other. Weekly days are
// the scheduler's concern, not a collection filter.
func (f Frequency) Matches(other Frequency) bool {
	return f.Cadence == other.Cadence
}

func (f Frequency) String() string {
	if f.Cadence == CadenceWeekly && f.Day != nil {
		return "weekly:" + strings.ToLower(f.Day.String())
	}
	return f.Cadence.String()
}

// ParseFrequency parses "never", "hourly", "daily", "immediate", "weekly"
// or "weekly:<dayname>".
func ParseFrequency(s string) (Frequency, error) {
	name, day, hasDay := strings.Cut(strings.TrimSpace(s), ":")
	c, err := ParseCadence(name)
	if err != nil {
		return Frequency{}, err
	}
	if !hasDay {
		return Frequency{Cadence: c}, nil
	}
	if c != CadenceWeekly {
		return Frequency{}, fmt.Errorf("%w: only weekly takes a day, got %q", ErrInvalidFrequency, s)
	}
	wd, err := ParseWeekday(day)
	if err != nil {
		return Frequency{}, err
	}
	return Weekly(wd), nil
}

// ParseWeekday parses an English day name ("saturday", "Sat").
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("%w: unknown weekday %q", ErrInvalidFrequency, s)
}

// ResolveFrequency picks the effective frequency: the person override when
// set, else the community default. A weekly override without a day takes
// the community default's day when that is weekly too.
func ResolveFrequency(override *Frequency, communityDefault Frequency) Frequency {
	if override == nil {
		return communityDefault
	}
	resolved := *override
	if resolved.Cadence == CadenceWeekly && resolved.Day == nil &&
		communityDefault.Cadence == CadenceWeekly && communityDefault.Day != nil {
		resolved.Day = communityDefault.Day
	}
	return resolved
}
