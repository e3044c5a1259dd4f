// Package runner executes reservation-sniping runs: a tight poll loop per
// task that hunts the Resy calendar until a matching slot books, the run is
// cancelled, or the upstream fails hard.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/dcallahan11/resybot-open/internal/resy"
	"github.com/dcallahan11/resybot-open/internal/store"
)

const dayFormat = "2006-01-02"

// Client is the slice of the Resy API the runner needs. *resy.Client
// implements it; tests substitute fakes.
type Client interface {
	Calendar(ctx context.Context, creds resy.Credentials, q resy.CalendarQuery) ([]resy.CalendarDay, error)
	FindSlots(ctx context.Context, creds resy.Credentials, q resy.SlotQuery) ([]resy.Slot, error)
	BookingToken(ctx context.Context, creds resy.Credentials, q resy.TokenQuery) (string, error)
	Book(ctx context.Context, creds resy.Credentials, q resy.BookQuery) (resy.BookOutcome, error)
}

// Notifier is best-effort message delivery. Implementations never fail.
type Notifier interface {
	Notify(ctx context.Context, msg string)
}

// Accounts is the ordered account set for one run: the primary books first,
// the backup only after the primary demonstrably failed to book a candidate.
type Accounts struct {
	Primary store.Account
	Backup  *store.Account
}

func (a Accounts) ordered() []store.Account {
	if a.Backup == nil {
		return []store.Account{a.Primary}
	}
	return []store.Account{a.Primary, *a.Backup}
}

type Runner struct {
	client   Client
	notifier Notifier
	log      zerolog.Logger
}

func New(client Client, notifier Notifier, log zerolog.Logger) *Runner {
	return &Runner{client: client, notifier: notifier, log: log}
}

// Run polls until a slot books, the context cancels, or a terminal failure.
// Every network call and the inter-cycle sleep honor ctx; cancellation yields
// an aborted result, never an error to the caller.
func (r *Runner) Run(ctx context.Context, task store.Task, accts Accounts, proxies []string) Result {
	log := r.log.With().Int64("task_id", task.ID).Str("restaurant", task.RestaurantID).Logger()
	creds := credentials(accts.Primary)

	for {
		// Availability is volatile: re-poll fresh every cycle, rotating
		// through the proxy pool at random.
		proxy := pickProxy(proxies)

		days, err := r.client.Calendar(ctx, creds, resy.CalendarQuery{
			VenueID:   task.RestaurantID,
			PartySize: task.PartySize,
			StartDate: task.StartDate.Format(dayFormat),
			EndDate:   task.EndDate.Format(dayFormat),
			ProxyURL:  proxy,
		})
		if err != nil {
			return r.finishErr(ctx, task, err)
		}

		for _, day := range days {
			if !day.Open() {
				continue
			}
			slots, err := r.client.FindSlots(ctx, creds, resy.SlotQuery{
				VenueID:   task.RestaurantID,
				PartySize: task.PartySize,
				Day:       day.Date,
				ProxyURL:  proxy,
			})
			if err != nil {
				return r.finishErr(ctx, task, err)
			}

			for _, cand := range selectCandidates(task, slots) {
				for _, acct := range accts.ordered() {
					booking, err := r.tryBook(ctx, acct, task, day.Date, cand, proxy)
					if err != nil {
						return r.finishErr(ctx, task, err)
					}
					if booking == nil {
						log.Debug().Str("day", day.Date).Str("slot", cand.clock().String()).
							Str("account", acct.Name).Msg("candidate did not book")
						continue
					}
					log.Info().Str("reservation_id", booking.ReservationID).
						Str("day", booking.Day).Str("slot", booking.SlotTime).
						Str("account", booking.Account).Msg("booked")
					r.notifier.Notify(ctx, fmt.Sprintf(
						"Booked %s for %d on %s at %s (account %s)",
						task.RestaurantID, task.PartySize, booking.Day, booking.SlotTime, booking.Account))
					return booked(*booking)
				}
			}
		}

		if err := sleepCtx(ctx, task.Delay()); err != nil {
			return aborted()
		}
	}
}

// tryBook attempts one candidate with one account: token exchange, then
// submission. A nil booking with a nil error means the candidate did not book
// for this account and the loop should move on. Only transport, shape, and
// cancellation errors propagate.
func (r *Runner) tryBook(ctx context.Context, acct store.Account, task store.Task, day string, cand candidate, proxy string) (*Booking, error) {
	creds := credentials(acct)

	token, err := r.client.BookingToken(ctx, creds, resy.TokenQuery{
		SlotToken: cand.slot.Token,
		Day:       day,
		PartySize: task.PartySize,
		ProxyURL:  proxy,
	})
	if err != nil {
		if errors.Is(err, resy.ErrNoBookToken) {
			return nil, nil
		}
		return nil, err
	}

	outcome, err := r.client.Book(ctx, creds, resy.BookQuery{
		BookToken:       token,
		PaymentMethodID: acct.PaymentMethodID,
		ProxyURL:        proxy,
	})
	if err != nil {
		return nil, err
	}
	if !outcome.Booked() {
		return nil, nil
	}
	return &Booking{
		ReservationID: outcome.ReservationID,
		RestaurantID:  task.RestaurantID,
		PartySize:     task.PartySize,
		Day:           day,
		SlotTime:      cand.clock().String(),
		Account:       acct.Name,
	}, nil
}

// finishErr classifies a loop-terminating error into aborted (cancellation,
// never notified) or failed (transport/shape, notified).
func (r *Runner) finishErr(ctx context.Context, task store.Task, err error) Result {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return aborted()
	}

	var te *resy.TransportError
	if errors.As(err, &te) {
		r.log.Warn().Int64("task_id", task.ID).Int("status", te.Status).Str("url", te.URL).Msg("transport failure")
		r.notifier.Notify(ctx, fmt.Sprintf(
			"Task %q failed: status=%d url=%s body=%s", task.Name, te.Status, te.URL, te.Snippet()))
		return failed("transport failure", err)
	}

	var se *resy.ShapeError
	if errors.As(err, &se) {
		r.log.Warn().Int64("task_id", task.ID).Str("endpoint", se.Endpoint).Err(se.Err).Msg("unexpected response shape")
		r.notifier.Notify(ctx, fmt.Sprintf(
			"Task %q failed: unexpected %s response shape", task.Name, se.Endpoint))
		return failed("unexpected response shape", err)
	}

	r.log.Warn().Int64("task_id", task.ID).Err(err).Msg("run failed")
	r.notifier.Notify(ctx, fmt.Sprintf("Task %q failed: %v", task.Name, err))
	return failed(err.Error(), err)
}

// candidate pairs a slot with its decoded time of day.
type candidate struct {
	slot    resy.Slot
	minutes int
}

func (c candidate) clock() store.Clock { return store.Clock(c.minutes) }

// selectCandidates builds the ordered candidate set for one day's slots.
// Preferred-time mode keeps slots within FlexMinutes of DesiredTime, closest
// first; hour-range mode keeps slots inside [StartHour, EndHour] in their
// original order.
func selectCandidates(task store.Task, slots []resy.Slot) []candidate {
	var out []candidate
	if task.DesiredTime != "" {
		desired, err := store.ParseClock(task.DesiredTime)
		if err != nil {
			return nil
		}
		for _, s := range slots {
			m, ok := resy.SlotMinutes(s.Token)
			if !ok {
				continue
			}
			if abs(m-int(desired)) <= task.FlexMinutes {
				out = append(out, candidate{slot: s, minutes: m})
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			return abs(out[i].minutes-int(desired)) < abs(out[j].minutes-int(desired))
		})
		return out
	}

	for _, s := range slots {
		m, ok := resy.SlotMinutes(s.Token)
		if !ok {
			continue
		}
		if h := m / 60; h >= task.StartHour && h <= task.EndHour {
			out = append(out, candidate{slot: s, minutes: m})
		}
	}
	return out
}

func credentials(a store.Account) resy.Credentials {
	return resy.Credentials{APIKey: a.APIKey, AuthToken: a.AuthToken}
}

func pickProxy(proxies []string) string {
	if len(proxies) == 0 {
		return ""
	}
	return proxies[rand.Intn(len(proxies))]
}

// sleepCtx is the interruptible inter-cycle delay.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
