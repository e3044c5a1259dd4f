package resy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://api.resy.com"

// Client talks to the Resy API. Credentials are passed per call so one
// client serves every account; an optional proxy URL is honored per call so
// the sniping loop can rotate proxies between iterations.
type Client struct {
	base    string
	timeout time.Duration

	mu      sync.Mutex
	clients map[string]*http.Client // keyed by proxy URL, "" = direct
}

type Option func(*Client)

// WithBaseURL overrides the API origin. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.base = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(opts ...Option) *Client {
	c := &Client{
		base:    defaultBaseURL,
		timeout: 10 * time.Second,
		clients: map[string]*http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type CalendarQuery struct {
	VenueID   string
	PartySize int
	StartDate string // YYYY-MM-DD, inclusive
	EndDate   string // YYYY-MM-DD, inclusive
	ProxyURL  string
}

type calendarResponse struct {
	Scheduled []struct {
		Date      string `json:"date"`
		Inventory struct {
			Reservation string `json:"reservation"`
		} `json:"inventory"`
	} `json:"scheduled"`
}

// Calendar fetches per-date availability for the venue across the date range.
func (c *Client) Calendar(ctx context.Context, creds Credentials, q CalendarQuery) ([]CalendarDay, error) {
	params := map[string]string{
		"venue_id":   q.VenueID,
		"num_seats":  strconv.Itoa(q.PartySize),
		"start_date": q.StartDate,
		"end_date":   q.EndDate,
	}
	status, body, err := c.do(ctx, q.ProxyURL, creds, http.MethodGet, c.base+"/4/venue/calendar", "", params, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &TransportError{URL: c.base + "/4/venue/calendar", Status: status, Body: string(body)}
	}
	var res calendarResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &ShapeError{Endpoint: "calendar", Err: err}
	}
	if res.Scheduled == nil {
		return nil, &ShapeError{Endpoint: "calendar", Err: fmt.Errorf("missing scheduled list")}
	}
	out := make([]CalendarDay, 0, len(res.Scheduled))
	for _, d := range res.Scheduled {
		out = append(out, CalendarDay{Date: d.Date, Reservation: d.Inventory.Reservation})
	}
	return out, nil
}

type SlotQuery struct {
	VenueID   string
	PartySize int
	Day       string // YYYY-MM-DD
	ProxyURL  string
}

type findResponse struct {
	Results struct {
		Venues []struct {
			Slots []struct {
				Date struct {
					Start string `json:"start"`
				} `json:"date"`
				Config struct {
					Type  string `json:"type"`
					Token string `json:"token"`
				} `json:"config"`
			} `json:"slots"`
		} `json:"venues"`
	} `json:"results"`
}

// FindSlots lists the bookable slots for one date. An empty list is a normal
// answer for a sold-out day.
func (c *Client) FindSlots(ctx context.Context, creds Credentials, q SlotQuery) ([]Slot, error) {
	params := map[string]string{
		"party_size": strconv.Itoa(q.PartySize),
		"venue_id":   q.VenueID,
		"day":        q.Day,
		// deprecated but still required by the endpoint
		"lat":  "0",
		"long": "0",
	}
	status, body, err := c.do(ctx, q.ProxyURL, creds, http.MethodGet, c.base+"/4/find", "", params, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &TransportError{URL: c.base + "/4/find", Status: status, Body: string(body)}
	}
	var res findResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &ShapeError{Endpoint: "find", Err: err}
	}
	if res.Results.Venues == nil {
		return nil, &ShapeError{Endpoint: "find", Err: fmt.Errorf("missing venues list")}
	}
	var out []Slot
	for _, v := range res.Results.Venues {
		for _, s := range v.Slots {
			out = append(out, Slot{Token: s.Config.Token, Type: s.Config.Type, Start: s.Date.Start})
		}
	}
	return out, nil
}

type TokenQuery struct {
	SlotToken string
	Day       string // YYYY-MM-DD
	PartySize int
	ProxyURL  string
}

type detailsResponse struct {
	BookToken struct {
		Value string `json:"value"`
	} `json:"book_token"`
}

// BookingToken exchanges a slot token for a short-lived book token. A refusal
// (non-2xx or an empty token) returns ErrNoBookToken: the slot is gone for
// this account but the run goes on.
func (c *Client) BookingToken(ctx context.Context, creds Credentials, q TokenQuery) (string, error) {
	payload, err := json.Marshal(struct {
		ConfigID  string `json:"config_id"`
		Day       string `json:"day"`
		PartySize int    `json:"party_size"`
	}{ConfigID: q.SlotToken, Day: q.Day, PartySize: q.PartySize})
	if err != nil {
		return "", err
	}
	status, body, err := c.do(ctx, q.ProxyURL, creds, http.MethodPost, c.base+"/3/details", "application/json", nil, payload)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("%w (status=%d)", ErrNoBookToken, status)
	}
	var res detailsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", &ShapeError{Endpoint: "details", Err: err}
	}
	if res.BookToken.Value == "" {
		return "", ErrNoBookToken
	}
	return res.BookToken.Value, nil
}

type BookQuery struct {
	BookToken       string
	PaymentMethodID int64
	ProxyURL        string
}

// Book submits the reservation. The HTTP status is returned inside the
// outcome rather than as an error: only the presence of a reservation
// identifier in the body decides whether the submission booked.
func (c *Client) Book(ctx context.Context, creds Credentials, q BookQuery) (BookOutcome, error) {
	form := "book_token=" + url.QueryEscape(q.BookToken)
	if q.PaymentMethodID != 0 {
		pm, _ := json.Marshal(struct {
			ID int64 `json:"id"`
		}{ID: q.PaymentMethodID})
		form += "&struct_payment_method=" + url.QueryEscape(string(pm))
	}
	status, body, err := c.do(ctx, q.ProxyURL, creds, http.MethodPost, c.base+"/3/book", "application/x-www-form-urlencoded", nil, []byte(form))
	if err != nil {
		return BookOutcome{}, err
	}
	return BookOutcome{Status: status, ReservationID: reservationID(body)}, nil
}

// reservationID pulls a reservation identifier out of a booking response:
// either top-level or nested one level under "specs".
func reservationID(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	if id := stringify(m["reservation_id"]); id != "" {
		return id
	}
	if specs, ok := m["specs"].(map[string]any); ok {
		return stringify(specs["reservation_id"])
	}
	return ""
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func (c *Client) do(ctx context.Context, proxyURL string, creds Credentials, method, rawURL, contentType string, query map[string]string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("user-agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36")
	req.Header.Set("origin", "https://resy.com")
	req.Header.Set("referrer", "https://resy.com")
	req.Header.Set("x-origin", "https://resy.com")
	req.Header.Set("cache-control", "no-cache")
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	req.Header.Set("authorization", fmt.Sprintf(`ResyAPI api_key="%s"`, creds.APIKey))
	req.Header.Set("x-resy-auth-token", creds.AuthToken)
	req.Header.Set("x-resy-universal-auth", creds.AuthToken)

	if query != nil {
		q := req.URL.Query()
		for k, v := range query {
			q.Add(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	hc, err := c.httpClient(proxyURL)
	if err != nil {
		return 0, nil, &TransportError{URL: rawURL, Body: err.Error()}
	}
	res, err := hc.Do(req)
	if err != nil {
		// surface cancellation as-is so the runner sees an abort, not a failure
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, &TransportError{URL: rawURL, Body: err.Error()}
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, &TransportError{URL: rawURL, Status: res.StatusCode, Body: err.Error()}
	}
	return res.StatusCode, b, nil
}

// httpClient returns a cached client for the given proxy ("" = direct).
func (c *Client) httpClient(proxyURL string) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.clients[proxyURL]; ok {
		return hc, nil
	}
	hc := &http.Client{Timeout: c.timeout}
	if proxyURL != "" {
		pu, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", proxyURL, err)
		}
		hc.Transport = &http.Transport{Proxy: http.ProxyURL(pu)}
	}
	c.clients[proxyURL] = hc
	return hc, nil
}
