package runner

type Status string

const (
	StatusBooked  Status = "booked"
	StatusFailed  Status = "failed"
	StatusAborted Status = "aborted"
)

// Booking is the payload of a successful run.
type Booking struct {
	ReservationID string
	RestaurantID  string
	PartySize     int
	Day           string // YYYY-MM-DD
	SlotTime      string // HH:MM
	Account       string // name of the account that booked
}

// Result is the terminal outcome of one sniping run. Exactly one of the
// optional fields is meaningful: Booking when booked, Reason/Err when failed.
type Result struct {
	Status  Status
	Booking *Booking
	Reason  string
	Err     error
}

func booked(b Booking) Result {
	return Result{Status: StatusBooked, Booking: &b}
}

func failed(reason string, err error) Result {
	return Result{Status: StatusFailed, Reason: reason, Err: err}
}

func aborted() Result {
	return Result{Status: StatusAborted}
}
