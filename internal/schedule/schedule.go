// Package schedule decides whether an instant is bookable on a doctor's
// recurring weekly calendar.
package schedule

import (
	"time"

	"github.com/jwalitptl/clinic-api/internal/model"
)

const (
	DefaultSlotMinutes = 15
	dateLayout         = "2006-01-02"
)

type Calculator struct {
	slotMinutes int
	loc         *time.Location
}

// NewCalculator evaluates instants in loc with the given slot size.
func NewCalculator(slotMinutes int, loc *time.Location) *Calculator {
	if slotMinutes <= 0 {
		slotMinutes = DefaultSlotMinutes
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{slotMinutes: slotMinutes, loc: loc}
}

func (c *Calculator) Location() *time.Location { return c.loc }

func (c *Calculator) SlotMinutes() int { return c.slotMinutes }

// Weekday numbers days from Saturday: Saturday=0, Sunday=1 ... Friday=6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 1) % 7
}

// IsWithinSchedule is true iff the instant falls on a working weekday,
// inside the inclusive daily range, on a slot boundary, and not on an
// exception date.
func (c *Calculator) IsWithinSchedule(opts *model.DoctorOptions, at time.Time) bool {
	if opts == nil {
		return false
	}
	local := at.In(c.loc)

	if !containsWeekday(opts.VisitWeekdays, Weekday(local)) {
		return false
	}

	start, end, err := opts.Range()
	if err != nil {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	if minute < start || minute > end {
		return false
	}

	if minute%c.slotMinutes != 0 {
		return false
	}

	return !c.IsException(opts, local)
}

// IsException reports whether the instant's calendar date is blocked.
func (c *Calculator) IsException(opts *model.DoctorOptions, at time.Time) bool {
	day := at.In(c.loc).Format(dateLayout)
	for _, ex := range opts.VisitExceptions {
		if ex == day {
			return true
		}
		if t, err := time.Parse(time.RFC3339, ex); err == nil && t.In(c.loc).Format(dateLayout) == day {
			return true
		}
	}
	return false
}

// DayBounds returns [start of the local calendar day, start of the next one).
func (c *Calculator) DayBounds(at time.Time) (time.Time, time.Time) {
	local := at.In(c.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	return start, start.AddDate(0, 0, 1)
}

// Slots lists every bookable instant on the day containing at.
func (c *Calculator) Slots(opts *model.DoctorOptions, at time.Time) []time.Time {
	if opts == nil {
		return nil
	}
	dayStart, _ := c.DayBounds(at)
	start, end, err := opts.Range()
	if err != nil {
		return nil
	}

	first := start
	if rem := start % c.slotMinutes; rem != 0 {
		first += c.slotMinutes - rem
	}

	var slots []time.Time
	for m := first; m <= end; m += c.slotMinutes {
		t := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), m/60, m%60, 0, 0, c.loc)
		if c.IsWithinSchedule(opts, t) {
			slots = append(slots, t)
		}
	}
	return slots
}

func containsWeekday(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
