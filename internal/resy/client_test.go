package resy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

var testCreds = Credentials{APIKey: "key", AuthToken: "token"}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL))
}

func TestCalendar(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/4/venue/calendar" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("venue_id"); got != "1234" {
			t.Errorf("venue_id = %q", got)
		}
		if got := r.Header.Get("authorization"); got != `ResyAPI api_key="key"` {
			t.Errorf("authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"scheduled":[
			{"date":"2026-09-01","inventory":{"reservation":"available"}},
			{"date":"2026-09-02","inventory":{"reservation":"sold-out"}}
		]}`))
	})

	days, err := c.Calendar(context.Background(), testCreds, CalendarQuery{
		VenueID: "1234", PartySize: 2, StartDate: "2026-09-01", EndDate: "2026-09-02",
	})
	if err != nil {
		t.Fatalf("Calendar: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("got %d days, want 2", len(days))
	}
	if !days[0].Open() || days[1].Open() {
		t.Fatalf("availability flags wrong: %+v", days)
	}
}

func TestCalendarShapeError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"maintenance"}`))
	})

	_, err := c.Calendar(context.Background(), testCreds, CalendarQuery{VenueID: "1"})
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("want ShapeError, got %v", err)
	}
}

func TestCalendarTransportError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`slow down`))
	})

	_, err := c.Calendar(context.Background(), testCreds, CalendarQuery{VenueID: "1"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want TransportError, got %v", err)
	}
	if te.Status != http.StatusTooManyRequests || te.Body != "slow down" {
		t.Fatalf("unexpected TransportError: %+v", te)
	}
}

func TestFindSlots(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/4/find" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"results":{"venues":[{"slots":[
			{"date":{"start":"2026-09-01 19:00:00"},"config":{"type":"Dining Room","token":"rgs://resy/1/19:00:00"}},
			{"date":{"start":"2026-09-01 20:30:00"},"config":{"type":"Patio","token":"rgs://resy/1/20:30:00"}}
		]}]}}`))
	})

	slots, err := c.FindSlots(context.Background(), testCreds, SlotQuery{VenueID: "1", PartySize: 2, Day: "2026-09-01"})
	if err != nil {
		t.Fatalf("FindSlots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("got %d slots, want 2", len(slots))
	}
	if slots[1].Type != "Patio" {
		t.Fatalf("slot type = %q", slots[1].Type)
	}
}

func TestFindSlotsEmptyDay(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"venues":[]}}`))
	})

	slots, err := c.FindSlots(context.Background(), testCreds, SlotQuery{VenueID: "1", Day: "2026-09-01"})
	if err != nil {
		t.Fatalf("sold-out day should not error: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("got %d slots, want 0", len(slots))
	}
}

func TestFindSlotsShapeError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"maintenance"}`))
	})

	_, err := c.FindSlots(context.Background(), testCreds, SlotQuery{VenueID: "1", Day: "2026-09-01"})
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("a response without a venues list must be a ShapeError, got %v", err)
	}
}

func TestBookingToken(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/3/details" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"book_token":{"value":"bt-123"}}`))
	})

	token, err := c.BookingToken(context.Background(), testCreds, TokenQuery{SlotToken: "rgs://x", Day: "2026-09-01", PartySize: 2})
	if err != nil {
		t.Fatalf("BookingToken: %v", err)
	}
	if token != "bt-123" {
		t.Fatalf("token = %q", token)
	}
}

func TestBookingTokenRefused(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"slot gone"}`))
	})

	_, err := c.BookingToken(context.Background(), testCreds, TokenQuery{SlotToken: "rgs://x", Day: "2026-09-01", PartySize: 2})
	if !errors.Is(err, ErrNoBookToken) {
		t.Fatalf("want ErrNoBookToken, got %v", err)
	}
}

func TestBook(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		booked bool
	}{
		{name: "booked nested", status: 201, body: `{"specs":{"reservation_id":"R9"}}`, booked: true},
		{name: "status-only body does not book", status: 200, body: `{"status":"ok"}`, booked: false},
		{name: "rejected", status: 412, body: `{"message":"payment required"}`, booked: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/3/book" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if err := r.ParseForm(); err != nil {
					t.Errorf("parse form: %v", err)
				}
				if got := r.PostFormValue("book_token"); got != "bt-123" {
					t.Errorf("book_token = %q", got)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			out, err := c.Book(context.Background(), testCreds, BookQuery{BookToken: "bt-123", PaymentMethodID: 42})
			if err != nil {
				t.Fatalf("Book: %v", err)
			}
			if out.Booked() != tt.booked {
				t.Fatalf("Booked() = %v, want %v (outcome %+v)", out.Booked(), tt.booked, out)
			}
		})
	}
}

func TestCancelledRequestSurfacesContextError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Calendar(ctx, testCreds, CalendarQuery{VenueID: "1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
