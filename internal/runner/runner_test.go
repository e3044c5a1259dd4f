package runner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dcallahan11/resybot-open/internal/resy"
	"github.com/dcallahan11/resybot-open/internal/store"
)

type fakeClient struct {
	calendar     func(ctx context.Context, creds resy.Credentials, q resy.CalendarQuery) ([]resy.CalendarDay, error)
	findSlots    func(ctx context.Context, creds resy.Credentials, q resy.SlotQuery) ([]resy.Slot, error)
	bookingToken func(ctx context.Context, creds resy.Credentials, q resy.TokenQuery) (string, error)
	book         func(ctx context.Context, creds resy.Credentials, q resy.BookQuery) (resy.BookOutcome, error)
}

func (f *fakeClient) Calendar(ctx context.Context, creds resy.Credentials, q resy.CalendarQuery) ([]resy.CalendarDay, error) {
	if f.calendar == nil {
		return []resy.CalendarDay{{Date: "2026-09-01", Reservation: "available"}}, nil
	}
	return f.calendar(ctx, creds, q)
}

func (f *fakeClient) FindSlots(ctx context.Context, creds resy.Credentials, q resy.SlotQuery) ([]resy.Slot, error) {
	if f.findSlots == nil {
		return nil, nil
	}
	return f.findSlots(ctx, creds, q)
}

func (f *fakeClient) BookingToken(ctx context.Context, creds resy.Credentials, q resy.TokenQuery) (string, error) {
	if f.bookingToken == nil {
		return "bt", nil
	}
	return f.bookingToken(ctx, creds, q)
}

func (f *fakeClient) Book(ctx context.Context, creds resy.Credentials, q resy.BookQuery) (resy.BookOutcome, error) {
	if f.book == nil {
		return resy.BookOutcome{Status: 201, ReservationID: "R1"}, nil
	}
	return f.book(ctx, creds, q)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func testTask() store.Task {
	return store.Task{
		ID:           1,
		Name:         "omakase",
		AccountID:    1,
		RestaurantID: "1234",
		PartySize:    2,
		StartDate:    time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC),
		DesiredTime:  "20:15",
		FlexMinutes:  45,
		DelayMS:      5,
	}
}

func slotAt(clock string) resy.Slot {
	return resy.Slot{Token: "rgs://resy/1234/1456/3/2026-09-01/2026-09-01/" + clock + ":00/2/Dining Room"}
}

func TestSelectCandidatesPreferredTime(t *testing.T) {
	t.Parallel()
	task := testTask() // 20:15 with 45 minutes of flex
	slots := []resy.Slot{
		slotAt("19:29"), // one minute too early
		slotAt("19:30"),
		slotAt("20:00"),
		slotAt("21:01"), // one minute too late
		slotAt("20:30"),
		slotAt("19:45"),
	}

	got := selectCandidates(task, slots)
	want := []string{"20:00", "20:30", "19:45", "19:30"}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.clock().String() != want[i] {
			t.Fatalf("candidate[%d] = %s, want %s", i, c.clock(), want[i])
		}
	}
}

func TestSelectCandidatesHourRange(t *testing.T) {
	t.Parallel()
	task := testTask()
	task.DesiredTime = ""
	task.StartHour = 18
	task.EndHour = 20

	slots := []resy.Slot{
		slotAt("17:59"),
		slotAt("20:59"),
		slotAt("18:00"),
		slotAt("21:00"),
	}

	got := selectCandidates(task, slots)
	want := []string{"20:59", "18:00"}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.clock().String() != want[i] {
			t.Fatalf("candidate[%d] = %s, want %s (order must be preserved)", i, c.clock(), want[i])
		}
	}
}

func TestRunBooks(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		findSlots: func(context.Context, resy.Credentials, resy.SlotQuery) ([]resy.Slot, error) {
			return []resy.Slot{slotAt("20:00")}, nil
		},
	}
	notifier := &recordingNotifier{}
	r := New(client, notifier, zerolog.Nop())

	res := r.Run(context.Background(), testTask(), Accounts{Primary: store.Account{ID: 1, Name: "primary"}}, nil)
	if res.Status != StatusBooked {
		t.Fatalf("status = %s, want %s (%+v)", res.Status, StatusBooked, res)
	}
	if res.Booking.ReservationID != "R1" || res.Booking.SlotTime != "20:00" || res.Booking.Account != "primary" {
		t.Fatalf("unexpected booking %+v", res.Booking)
	}
	msgs := notifier.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "Booked") {
		t.Fatalf("want one booked notification, got %q", msgs)
	}
}

func TestRunFallsBackToBackupAccount(t *testing.T) {
	t.Parallel()
	var attempts []string
	client := &fakeClient{
		findSlots: func(context.Context, resy.Credentials, resy.SlotQuery) ([]resy.Slot, error) {
			return []resy.Slot{slotAt("20:00")}, nil
		},
		bookingToken: func(_ context.Context, creds resy.Credentials, _ resy.TokenQuery) (string, error) {
			attempts = append(attempts, creds.APIKey)
			if creds.APIKey == "primary-key" {
				return "", resy.ErrNoBookToken
			}
			return "bt", nil
		},
	}
	r := New(client, Nop{}, zerolog.Nop())

	backup := store.Account{ID: 2, Name: "backup", APIKey: "backup-key"}
	accts := Accounts{
		Primary: store.Account{ID: 1, Name: "primary", APIKey: "primary-key"},
		Backup:  &backup,
	}
	res := r.Run(context.Background(), testTask(), accts, nil)
	if res.Status != StatusBooked {
		t.Fatalf("status = %s, want %s", res.Status, StatusBooked)
	}
	if res.Booking.Account != "backup" {
		t.Fatalf("booked with %q, want backup", res.Booking.Account)
	}
	if len(attempts) != 2 || attempts[0] != "primary-key" || attempts[1] != "backup-key" {
		t.Fatalf("account order = %v, want primary then backup", attempts)
	}
}

func TestRunAdvancesPastUnbookedOutcome(t *testing.T) {
	t.Parallel()
	var booked []string
	client := &fakeClient{
		findSlots: func(context.Context, resy.Credentials, resy.SlotQuery) ([]resy.Slot, error) {
			return []resy.Slot{slotAt("20:00"), slotAt("20:30")}, nil
		},
		bookingToken: func(_ context.Context, _ resy.Credentials, q resy.TokenQuery) (string, error) {
			return q.SlotToken, nil
		},
		book: func(_ context.Context, _ resy.Credentials, q resy.BookQuery) (resy.BookOutcome, error) {
			booked = append(booked, q.BookToken)
			if len(booked) == 1 {
				// Accepted submission that never produced a reservation id.
				return resy.BookOutcome{Status: 200}, nil
			}
			return resy.BookOutcome{Status: 201, ReservationID: "R2"}, nil
		},
	}
	r := New(client, Nop{}, zerolog.Nop())

	res := r.Run(context.Background(), testTask(), Accounts{Primary: store.Account{ID: 1, Name: "primary"}}, nil)
	if res.Status != StatusBooked {
		t.Fatalf("status = %s, want %s", res.Status, StatusBooked)
	}
	if len(booked) != 2 {
		t.Fatalf("book attempts = %d, want 2 (loop must advance past an id-less outcome)", len(booked))
	}
	if res.Booking.SlotTime != "20:30" {
		t.Fatalf("booked slot = %s, want the second candidate", res.Booking.SlotTime)
	}
}

func TestRunTransportFailureNotifies(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		calendar: func(context.Context, resy.Credentials, resy.CalendarQuery) ([]resy.CalendarDay, error) {
			return nil, &resy.TransportError{URL: "https://api.resy.com/4/venue/calendar", Status: 500, Body: "boom"}
		},
	}
	notifier := &recordingNotifier{}
	r := New(client, notifier, zerolog.Nop())

	res := r.Run(context.Background(), testTask(), Accounts{Primary: store.Account{ID: 1}}, nil)
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", res.Status, StatusFailed)
	}
	msgs := notifier.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "status=500") || !strings.Contains(msgs[0], "boom") {
		t.Fatalf("want one transport notification with status and body, got %q", msgs)
	}
}

func TestRunShapeFailureNotifies(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		findSlots: func(context.Context, resy.Credentials, resy.SlotQuery) ([]resy.Slot, error) {
			return nil, &resy.ShapeError{Endpoint: "/4/find"}
		},
	}
	notifier := &recordingNotifier{}
	r := New(client, notifier, zerolog.Nop())

	res := r.Run(context.Background(), testTask(), Accounts{Primary: store.Account{ID: 1}}, nil)
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", res.Status, StatusFailed)
	}
	if msgs := notifier.messages(); len(msgs) != 1 {
		t.Fatalf("want one shape notification, got %q", msgs)
	}
}

func TestRunCancellationAbortsSilently(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		calendar: func(ctx context.Context, _ resy.Credentials, _ resy.CalendarQuery) ([]resy.CalendarDay, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	notifier := &recordingNotifier{}
	r := New(client, notifier, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Run(ctx, testTask(), Accounts{Primary: store.Account{ID: 1}}, nil)
	if res.Status != StatusAborted {
		t.Fatalf("status = %s, want %s", res.Status, StatusAborted)
	}
	if msgs := notifier.messages(); len(msgs) != 0 {
		t.Fatalf("cancellation must never notify, got %q", msgs)
	}
}

func TestStartDeadlineAborts(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		calendar: func(context.Context, resy.Credentials, resy.CalendarQuery) ([]resy.CalendarDay, error) {
			return []resy.CalendarDay{{Date: "2026-09-01", Reservation: "sold-out"}}, nil
		},
	}
	r := New(client, Nop{}, zerolog.Nop())

	run := r.Start(context.Background(), testTask(), Accounts{Primary: store.Account{ID: 1}}, nil, 30*time.Millisecond)
	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not unwind at its deadline")
	}
	if res := run.Result(); res.Status != StatusAborted {
		t.Fatalf("status = %s, want %s", res.Status, StatusAborted)
	}
}

// Nop mirrors notify.Nop without importing it, keeping the package's test
// dependencies local.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}
