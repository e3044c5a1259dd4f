package resy

import (
	"errors"
	"fmt"
)

// Credentials are the API key and auth token captured from an authenticated
// browser session, per account.
type Credentials struct {
	APIKey    string
	AuthToken string
}

// TransportError is an HTTP-level failure: a request that could not complete
// or an endpoint answering outside its success range. Terminal for the
// current run.
type TransportError struct {
	URL    string
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("resy: request failed (status=%d url=%s): %s", e.Status, e.URL, e.Snippet())
}

// Snippet returns the response body truncated for logs and notifications.
func (e *TransportError) Snippet() string {
	const max = 300
	if len(e.Body) <= max {
		return e.Body
	}
	return e.Body[:max] + "..."
}

// ShapeError is a response that decoded, or failed to decode, into something
// other than the documented structure. It usually means the upstream contract
// changed, so it is never retried.
type ShapeError struct {
	Endpoint string
	Err      error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("resy: unexpected %s response shape: %v", e.Endpoint, e.Err)
}

func (e *ShapeError) Unwrap() error { return e.Err }

// ErrNoBookToken reports a token exchange that the service refused. The
// candidate simply did not book for that account; the caller moves on.
var ErrNoBookToken = errors.New("resy: no book token issued")

// CalendarDay is one entry of the multi-date availability calendar.
type CalendarDay struct {
	Date        string // YYYY-MM-DD
	Reservation string // inventory flag, e.g. "available", "sold-out", "closed"
}

// Open reports whether the day's inventory flag indicates bookable slots.
func (d CalendarDay) Open() bool { return d.Reservation == "available" }

// Slot is one bookable configuration returned by slot search. Token is the
// opaque per-slot identifier; it embeds the slot's time of day.
type Slot struct {
	Token string
	Type  string
	Start string // "YYYY-MM-DD HH:MM:SS" when present
}

// BookOutcome is the decoded result of a booking submission. An empty
// ReservationID means the submission did not book.
type BookOutcome struct {
	Status        int
	ReservationID string
}

func (o BookOutcome) Booked() bool { return o.ReservationID != "" }

// SlotMinutes extracts the slot's time of day, in minutes since midnight,
// from its opaque token. The parse is tolerant: it scans for the first
// embedded HH:MM or HH:MM:SS with in-range fields.
func SlotMinutes(token string) (int, bool) {
	for i := 0; i+3 < len(token); i++ {
		// never start a clock match mid-number ("123:45" is not "23:45")
		if i > 0 && token[i-1] >= '0' && token[i-1] <= '9' {
			continue
		}
		h, m, w := scanClock(token[i:])
		if w == 0 {
			continue
		}
		return h*60 + m, true
	}
	return 0, false
}

// scanClock matches HH:MM or H:MM at the start of s, refusing matches that
// run into further digits (so "2026-09" never reads as a clock). Returns the
// matched width, 0 on no match.
func scanClock(s string) (hour, minute, width int) {
	digits := func(b byte) bool { return b >= '0' && b <= '9' }

	n := 0
	for n < len(s) && n < 2 && digits(s[n]) {
		n++
	}
	if n == 0 || n >= len(s) || s[n] != ':' {
		return 0, 0, 0
	}
	if len(s) < n+3 || !digits(s[n+1]) || !digits(s[n+2]) {
		return 0, 0, 0
	}
	// a third minute digit means this was not a clock
	if len(s) > n+3 && digits(s[n+3]) {
		return 0, 0, 0
	}

	h := int(s[0] - '0')
	if n == 2 {
		h = h*10 + int(s[1]-'0')
	}
	m := int(s[n+1]-'0')*10 + int(s[n+2]-'0')
	if h > 23 || m > 59 {
		return 0, 0, 0
	}
	return h, m, n + 3
}
