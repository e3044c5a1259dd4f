package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dcallahan11/resybot-open/internal/resy"
	"github.com/dcallahan11/resybot-open/internal/store"
)

func batchTasks(n int) []store.Task {
	tasks := make([]store.Task, 0, n)
	for i := 0; i < n; i++ {
		t := testTask()
		t.ID = int64(i + 1)
		tasks = append(tasks, t)
	}
	return tasks
}

func TestRunAllBoundedConcurrency(t *testing.T) {
	t.Parallel()
	var (
		mu     sync.Mutex
		active int
		peak   int
	)
	client := &fakeClient{
		calendar: func(context.Context, resy.Credentials, resy.CalendarQuery) ([]resy.CalendarDay, error) {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return []resy.CalendarDay{{Date: "2026-09-01", Reservation: "available"}}, nil
		},
		findSlots: func(context.Context, resy.Credentials, resy.SlotQuery) ([]resy.Slot, error) {
			return []resy.Slot{slotAt("20:00")}, nil
		},
	}
	r := New(client, Nop{}, zerolog.Nop())

	accounts := map[int64]store.Account{1: {ID: 1, Name: "primary"}}
	results := r.RunAll(context.Background(), batchTasks(5), accounts, nil, 2)

	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	for id, res := range results {
		if res.Status != StatusBooked {
			t.Fatalf("task %d status = %s, want %s", id, res.Status, StatusBooked)
		}
	}
	if peak > 2 {
		t.Fatalf("observed %d simultaneous runs, limit is 2", peak)
	}
}

func TestRunAllUnknownAccountFailsFast(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		findSlots: func(context.Context, resy.Credentials, resy.SlotQuery) ([]resy.Slot, error) {
			return []resy.Slot{slotAt("20:00")}, nil
		},
	}
	r := New(client, Nop{}, zerolog.Nop())

	tasks := batchTasks(2)
	tasks[1].AccountID = 99
	accounts := map[int64]store.Account{1: {ID: 1, Name: "primary"}}

	results := r.RunAll(context.Background(), tasks, accounts, nil, 2)
	if results[1].Status != StatusBooked {
		t.Fatalf("task 1 status = %s, want %s", results[1].Status, StatusBooked)
	}
	if results[2].Status != StatusFailed || results[2].Reason != "unknown account" {
		t.Fatalf("task 2 = %+v, want failed with unknown account", results[2])
	}
}

func TestRunAllCancelStopsDequeues(t *testing.T) {
	t.Parallel()
	client := &fakeClient{
		calendar: func(ctx context.Context, _ resy.Credentials, _ resy.CalendarQuery) ([]resy.CalendarDay, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r := New(client, Nop{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	accounts := map[int64]store.Account{1: {ID: 1, Name: "primary"}}
	results := r.RunAll(ctx, batchTasks(3), accounts, nil, 1)

	if len(results) != 1 {
		t.Fatalf("got %d results, want only the in-flight task (%+v)", len(results), results)
	}
	for id, res := range results {
		if res.Status != StatusAborted {
			t.Fatalf("task %d status = %s, want %s", id, res.Status, StatusAborted)
		}
	}
}
