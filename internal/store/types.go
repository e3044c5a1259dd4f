package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Task describes one reservation to hunt for. Tasks are owned by the store;
// the scheduler and runner treat them as read-only.
type Task struct {
	ID              int64
	Name            string
	AccountID       int64
	BackupAccountID *int64
	RestaurantID    string
	PartySize       int

	// Inclusive date range to poll.
	StartDate time.Time
	EndDate   time.Time

	// Preferred-time matching: DesiredTime ("HH:MM") plus FlexMinutes.
	// When DesiredTime is empty, hour-range matching with
	// [StartHour, EndHour] applies instead.
	DesiredTime string
	FlexMinutes int
	StartHour   int
	EndHour     int

	// Poll cadence between sniping iterations.
	DelayMS int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Delay returns the inter-iteration poll delay.
func (t Task) Delay() time.Duration {
	return time.Duration(t.DelayMS) * time.Millisecond
}

func (t Task) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("name required")
	}
	if t.AccountID <= 0 {
		return fmt.Errorf("account_id required")
	}
	if t.RestaurantID == "" {
		return fmt.Errorf("restaurant_id required")
	}
	if t.PartySize < 1 {
		return fmt.Errorf("party_size must be >= 1")
	}
	if t.StartDate.IsZero() || t.EndDate.IsZero() {
		return fmt.Errorf("start_date and end_date required")
	}
	if t.EndDate.Before(t.StartDate) {
		return fmt.Errorf("end_date must not be before start_date")
	}
	if t.DesiredTime != "" {
		if _, err := ParseClock(t.DesiredTime); err != nil {
			return fmt.Errorf("desired_time: %w", err)
		}
		if t.FlexMinutes < 0 {
			return fmt.Errorf("flex_minutes must be >= 0")
		}
	} else {
		if t.StartHour < 0 || t.StartHour > 23 || t.EndHour < 0 || t.EndHour > 23 {
			return fmt.Errorf("start_hour/end_hour must be within 0..23")
		}
		if t.EndHour < t.StartHour {
			return fmt.Errorf("end_hour must be >= start_hour")
		}
	}
	if t.DelayMS < 1 {
		return fmt.Errorf("delay_ms must be >= 1")
	}
	return nil
}

type ScheduleKind string

const (
	KindOnce   ScheduleKind = "once"
	KindDaily  ScheduleKind = "daily"
	KindWeekly ScheduleKind = "weekly"
)

// Schedule binds a single task to a trigger. Exactly the fields relevant to
// Kind are populated: RunAt for once, TimeOfDay for daily, TimeOfDay plus
// DayOfWeek for weekly.
type Schedule struct {
	ID     int64
	TaskID int64
	Kind   ScheduleKind

	RunAt     *time.Time // once
	TimeOfDay string     // daily, weekly ("HH:MM")
	DayOfWeek *int       // weekly (0=Sunday .. 6=Saturday)

	// Hard deadline for a launched run.
	DurationSec int
	Enabled     bool

	CreatedAt time.Time
}

func (s Schedule) Duration() time.Duration {
	return time.Duration(s.DurationSec) * time.Second
}

func (s Schedule) Validate() error {
	if s.TaskID <= 0 {
		return fmt.Errorf("task_id required")
	}
	if s.DurationSec < 1 {
		return fmt.Errorf("duration_sec must be >= 1")
	}
	switch s.Kind {
	case KindOnce:
		if s.RunAt == nil {
			return fmt.Errorf("once schedule requires run_at")
		}
		if s.TimeOfDay != "" || s.DayOfWeek != nil {
			return fmt.Errorf("once schedule must not set time_of_day or day_of_week")
		}
	case KindDaily:
		if s.RunAt != nil || s.DayOfWeek != nil {
			return fmt.Errorf("daily schedule must only set time_of_day")
		}
		if _, err := ParseClock(s.TimeOfDay); err != nil {
			return fmt.Errorf("time_of_day: %w", err)
		}
	case KindWeekly:
		if s.RunAt != nil {
			return fmt.Errorf("weekly schedule must not set run_at")
		}
		if _, err := ParseClock(s.TimeOfDay); err != nil {
			return fmt.Errorf("time_of_day: %w", err)
		}
		if s.DayOfWeek == nil || *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
			return fmt.Errorf("weekly schedule requires day_of_week within 0..6")
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
	return nil
}

// Account holds the captured Resy session for one profile. The primary
// account books first; a task may name a second account as fallback.
type Account struct {
	ID              int64
	Name            string
	APIKey          string
	AuthToken       string
	PaymentMethodID int64

	CreatedAt time.Time
}

type Proxy struct {
	ID  int64
	URL string

	CreatedAt time.Time
}

// Clock is a time of day in minutes since midnight.
type Clock int

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock(h*60 + m), nil
}
