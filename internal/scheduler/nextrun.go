package scheduler

import (
	"time"

	"github.com/dcallahan11/resybot-open/internal/store"
)

// NextRun computes the next fire instant for a schedule. It is a pure
// function of the schedule, the current instant, and the scheduler's
// location. Disabled schedules and schedules missing the fields their kind
// requires produce no next run.
//
// Rules:
//   - once: the literal RunAt, even when already past (the caller fires it
//     immediately).
//   - daily: the first instant at TimeOfDay strictly after now; a time equal
//     to now to the second is tomorrow, not immediate.
//   - weekly: the first instant on DayOfWeek at TimeOfDay at-or-after now;
//     when today is the target day but the time has passed, exactly seven
//     days out, never zero.
func NextRun(sc store.Schedule, now time.Time, loc *time.Location) (time.Time, bool) {
	if !sc.Enabled {
		return time.Time{}, false
	}

	switch sc.Kind {
	case store.KindOnce:
		if sc.RunAt == nil {
			return time.Time{}, false
		}
		return *sc.RunAt, true

	case store.KindDaily:
		c, err := store.ParseClock(sc.TimeOfDay)
		if err != nil {
			return time.Time{}, false
		}
		local := now.In(loc)
		at := time.Date(local.Year(), local.Month(), local.Day(), c.Hour(), c.Minute(), 0, 0, loc)
		if !at.After(now) {
			at = time.Date(local.Year(), local.Month(), local.Day()+1, c.Hour(), c.Minute(), 0, 0, loc)
		}
		return at, true

	case store.KindWeekly:
		c, err := store.ParseClock(sc.TimeOfDay)
		if err != nil {
			return time.Time{}, false
		}
		if sc.DayOfWeek == nil || *sc.DayOfWeek < 0 || *sc.DayOfWeek > 6 {
			return time.Time{}, false
		}
		local := now.In(loc)
		ahead := (*sc.DayOfWeek - int(local.Weekday()) + 7) % 7
		at := time.Date(local.Year(), local.Month(), local.Day()+ahead, c.Hour(), c.Minute(), 0, 0, loc)
		if at.Before(now) {
			// today is the target day and the time already passed
			at = time.Date(local.Year(), local.Month(), local.Day()+7, c.Hour(), c.Minute(), 0, 0, loc)
		}
		return at, true
	}

	return time.Time{}, false
}
